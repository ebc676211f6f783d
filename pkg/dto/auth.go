package dto

import (
	"errors"
	"fmt"
	"strings"
)

/**
  {
      "username": "alice",
      "password": "secret"
  }
*/

type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a Auth) IsValid() error {
	var usernameErr, passwordErr error

	if strings.TrimSpace(a.Username) == "" {
		usernameErr = fmt.Errorf("username is required")
	}

	if strings.TrimSpace(a.Password) == "" {
		passwordErr = fmt.Errorf("password is required")
	}

	return errors.Join(usernameErr, passwordErr)
}
