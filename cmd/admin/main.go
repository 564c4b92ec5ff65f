// Command admin bootstraps accounts directly against the database. It is the
// way to create the first ADMIN, since self-registration always yields USER.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage:\n  %s migrate\n  %s create -account <account> [-role USER|ADMIN] [-display-name <name>]\n", os.Args[0], os.Args[0])
}

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	sugar := lg.Sugar()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	err = run(context.Background(), os.Args[1], os.Args[2:], sugar)
	_ = lg.Sync()
	if errors.Is(err, errUsage) {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		sugar.Errorf("%s: %v", os.Args[1], err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// run executes one subcommand. Resources it opens are closed before it
// returns so main can exit on the error.
func run(ctx context.Context, cmd string, args []string, sugar *zap.SugaredLogger) error {
	dbCfg := database.ConfigFromEnv()
	dbCfg.Migrate = true

	switch cmd {
	case "migrate":
		db, err := database.Open(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		db.Close()
		sugar.Info("migrations applied")
		return nil

	case "create":
		createCmd := flag.NewFlagSet("create", flag.ContinueOnError)
		account := createCmd.String("account", "", "account to create")
		role := createCmd.String("role", entity.RoleAdmin.String(), "role of the new user")
		displayName := createCmd.String("display-name", "", "display name")
		if err := createCmd.Parse(args); err != nil || *account == "" {
			return errUsage
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		password, err := promptPassword(os.Stderr, int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		db, err := database.Open(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer db.Close()

		ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
		if err != nil {
			return fmt.Errorf("id generator: %w", err)
		}
		id, err := createUser(ctx, userrepo.NewUserRepo(db), credential.New(cfg.PasswordSalt, cfg.Argon2), ids, newUser{
			Account:     *account,
			Role:        *role,
			DisplayName: *displayName,
			Password:    password,
		}, sugar)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	default:
		return errUsage
	}
}

// promptPassword asks twice without echo and returns the password when both
// entries match.
func promptPassword(w io.Writer, fd int) (string, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	fmt.Fprint(w, "Confirm password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

type newUser struct {
	Account     string
	Role        string
	DisplayName string
	Password    string
}

func createUser(ctx context.Context, users userrepo.Repository, codec *credential.Codec, ids auth.IDGenerator, in newUser, logger *zap.SugaredLogger) (int64, error) {
	if len(in.Account) < auth.MinAccountLen {
		return 0, fmt.Errorf("account must be at least %d characters", auth.MinAccountLen)
	}
	if len(in.Password) < auth.MinPasswordLen {
		return 0, fmt.Errorf("password must be at least %d characters", auth.MinPasswordLen)
	}
	role, ok := entity.ParseRole(in.Role)
	if !ok {
		return 0, fmt.Errorf("unknown role %q", in.Role)
	}
	existing, err := users.FindByAccount(ctx, in.Account)
	switch {
	case err == nil:
		// reruns with the same credentials and role are no-ops
		if existing.Role == role.String() && codec.Verify(existing.PasswordDigest, in.Password) {
			logger.Infow("user already present", "id", existing.ID, "account", existing.Account)
			return existing.ID, nil
		}
		return 0, userrepo.ErrDuplicateAccount
	case !errors.Is(err, userrepo.ErrNotFound):
		return 0, err
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = in.Account
	}

	u := &entity.User{
		ID:             ids.NextID(),
		Account:        in.Account,
		PasswordDigest: codec.Digest(in.Password),
		DisplayName:    displayName,
		Role:           role.String(),
	}
	if err := users.Insert(ctx, u); err != nil {
		return 0, err
	}
	logger.Infow("user created", "id", u.ID, "account", u.Account, "role", u.Role)
	return u.ID, nil
}
