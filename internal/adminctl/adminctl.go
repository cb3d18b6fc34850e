// Package adminctl creates accounts from the command line. It is how the
// first SUPER_ADMIN gets into an empty database.
package adminctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/flagx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// UserCreator is the part of the user service the command needs.
type UserCreator interface {
	Create(ctx context.Context, in services.UserInput) (*models.User, error)
}

// Options select the account to create. Empty Email or Name are prompted for.
type Options struct {
	Email string
	Name  string
	Role  models.Role
}

// ParseOptions reads -email, -name and -role from args, ignoring other
// flags. Role defaults to SUPER_ADMIN.
func ParseOptions(args []string) (Options, error) {
	args = flagx.FilterArgs(args, []string{"-email", "-name", "-role"})

	var opts Options
	var role string

	fs := flag.NewFlagSet("adminctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Email, "email", "", "account email")
	fs.StringVar(&opts.Name, "name", "", "display name")
	fs.StringVar(&role, "role", string(models.RoleSuperAdmin), "ADMIN or SUPER_ADMIN")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	opts.Role = models.Role(strings.ToUpper(strings.TrimSpace(role)))
	if !opts.Role.Valid() {
		return Options{}, fmt.Errorf("unknown role %q", role)
	}
	return opts, nil
}

// Command talks to an operator over in/out and creates the account.
type Command struct {
	users UserCreator
	in    *bufio.Reader
	out   io.Writer
	fd    int
}

// New returns a Command reading answers from in and the password from the
// terminal behind os.Stdin.
func New(users UserCreator, in io.Reader, out io.Writer) *Command {
	return &Command{users: users, in: bufio.NewReader(in), out: out, fd: int(os.Stdin.Fd())}
}

// Run prompts for whatever opts leave out, then creates the user.
func (c *Command) Run(ctx context.Context, opts Options) (*models.User, error) {
	var err error

	if opts.Email == "" {
		if opts.Email, err = c.prompt("Email"); err != nil {
			return nil, err
		}
	}
	if opts.Name == "" {
		if opts.Name, err = c.prompt("Name"); err != nil {
			return nil, err
		}
	}

	password, err := c.password()
	if err != nil {
		return nil, err
	}

	user, err := c.users.Create(ctx, services.UserInput{
		Email:    opts.Email,
		Name:     opts.Name,
		Password: password,
		Role:     opts.Role,
	})
	if err != nil {
		return nil, describe(err)
	}

	fmt.Fprintf(c.out, "Created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return user, nil
}

func (c *Command) prompt(label string) (string, error) {
	if _, err := fmt.Fprintf(c.out, "%s: ", label); err != nil {
		return "", err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads the password twice without echo. The raw buffers are
// zeroed before returning.
func (c *Command) password() (string, error) {
	fmt.Fprint(c.out, "Password: ")
	first, err := readPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	fmt.Fprint(c.out, "Repeat password: ")
	second, err := readPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", ErrPasswordMismatch
	}
	return string(first), nil
}

// describe turns service errors into operator-facing messages.
func describe(err error) error {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		fields := make([]string, 0, len(ve.Fields))
		for name, msg := range ve.Fields {
			fields = append(fields, name+" "+msg)
		}
		sort.Strings(fields)
		return fmt.Errorf("invalid input: %s", strings.Join(fields, "; "))
	case errors.Is(err, common.ErrAlreadyExists):
		return errors.New("a user with that email already exists")
	default:
		return err
	}
}
