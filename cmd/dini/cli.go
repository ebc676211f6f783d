package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/paper-piper/Dini/internal/app"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/mining"
	"github.com/shopspring/decimal"
)

const usage = `  register <username>             create an account (password read from stdin)
  login <username>                log in (password read from stdin)
  logout                          end the session
  balance                         show the current balance
  history                         list transactions, newest first
  users                           list connected users who can receive transfers
  buy <amount>                    buy tokens and wait for settlement
  sell <amount>                   sell tokens and wait for settlement
  transfer <recipient> <amount>   send tokens to another user
  mine                            run the mining simulation
  watch                           follow balance changes until interrupted
`

var errUsage = errors.New("invalid usage")

type wallet interface {
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Start(ctx context.Context) error
	Session() (domain.Session, domain.SessionState)
	Balance() decimal.Decimal
	History() []domain.Transaction
	ConnectedUsers(ctx context.Context) ([]string, error)
	Submit(ctx context.Context, typ domain.TxType, amount decimal.Decimal, details string) (domain.Transaction, error)
	Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (domain.Transaction, error)
	Mine(ctx context.Context) (*mining.Run, error)
	WaitSettled(ctx context.Context, id string) (domain.Transaction, error)
	Changes() <-chan struct{}
}

type cli struct {
	wallet wallet
	in     *bufio.Reader
	out    io.Writer
}

func newCLI(w wallet, in io.Reader, out io.Writer) *cli {
	return &cli{wallet: w, in: bufio.NewReader(in), out: out}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command\n\n%s", errUsage, usage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register", "login":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s <username>", errUsage, cmd)
		}
		return c.authenticate(ctx, cmd, rest[0])
	case "logout":
		if err := c.wallet.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "logged out")
		return nil
	case "balance":
		if err := c.start(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, c.wallet.Balance().String())
		return nil
	case "history":
		if err := c.start(ctx); err != nil {
			return err
		}
		return c.history()
	case "users":
		users, err := c.wallet.ConnectedUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Fprintln(c.out, u)
		}
		return nil
	case "buy", "sell":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s <amount>", errUsage, cmd)
		}
		amount, err := parseAmount(rest[0])
		if err != nil {
			return err
		}
		if err := c.start(ctx); err != nil {
			return err
		}
		tx, err := c.wallet.Submit(ctx, domain.TxType(cmd), amount, "")
		if err != nil {
			return err
		}
		return c.settle(ctx, tx)
	case "transfer":
		if len(rest) != 2 {
			return fmt.Errorf("%w: transfer <recipient> <amount>", errUsage)
		}
		amount, err := parseAmount(rest[1])
		if err != nil {
			return err
		}
		if err := c.start(ctx); err != nil {
			return err
		}
		tx, err := c.wallet.Transfer(ctx, rest[0], amount)
		if err != nil {
			return err
		}
		return c.settle(ctx, tx)
	case "mine":
		if err := c.start(ctx); err != nil {
			return err
		}
		return c.mine(ctx)
	case "watch":
		if err := c.start(ctx); err != nil {
			return err
		}
		return c.watch(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q\n\n%s", errUsage, cmd, usage)
	}
}

func (c *cli) authenticate(ctx context.Context, cmd, username string) error {
	fmt.Fprint(c.out, "password: ")
	password, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	if cmd == "register" {
		err = c.wallet.Register(ctx, username, password)
	} else {
		err = c.wallet.Login(ctx, username, password)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\nlogged in as %s\n", username)
	return nil
}

func (c *cli) start(ctx context.Context) error {
	err := c.wallet.Start(ctx)
	if errors.Is(err, app.ErrLoginRequired) {
		return fmt.Errorf("%w: run `dini login <username>` first", err)
	}
	return err
}

func (c *cli) history() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAMOUNT\tSTATUS\tTIME\tDETAILS")
	for _, tx := range c.wallet.History() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Type, tx.Amount.String(), tx.Status, tx.Timestamp.Local().Format(time.DateTime), tx.Details)
	}
	return tw.Flush()
}

func (c *cli) settle(ctx context.Context, tx domain.Transaction) error {
	fmt.Fprintf(c.out, "%s %s submitted (%s), waiting for settlement...\n", tx.Type, tx.Amount.String(), tx.ID)

	settled, err := c.wallet.WaitSettled(ctx, tx.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s %s\nbalance: %s\n", settled.ID, settled.Status, c.wallet.Balance().String())
	return nil
}

func (c *cli) mine(ctx context.Context) error {
	run, err := c.wallet.Mine(ctx)
	if err != nil {
		return err
	}

	for p := range run.Progress() {
		fmt.Fprintf(c.out, "\r%s  %3.0f%%", strings.Join(p.Reels[:], " "), p.Fraction*100)
	}
	fmt.Fprintln(c.out)

	tx, err := run.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "JACKPOT!")
	return c.settle(ctx, tx)
}

func (c *cli) watch(ctx context.Context) error {
	for {
		changes := c.wallet.Changes()

		sess, state := c.wallet.Session()
		if state != domain.Authenticated {
			return fmt.Errorf("session %s: %w", state, domain.ErrUnauthorized)
		}

		pending := 0
		for _, tx := range c.wallet.History() {
			if tx.Status == domain.StatusPending {
				pending++
			}
		}
		fmt.Fprintf(c.out, "%s  balance %s  pending %d\n", sess.Username, c.wallet.Balance().String(), pending)

		select {
		case <-changes:
		case <-ctx.Done():
			return nil
		}
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q is not a number", errUsage, s)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", errUsage)
	}
	return amount, nil
}
