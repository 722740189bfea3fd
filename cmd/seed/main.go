// Command seed creates the first admin account of an empty installation.
//
// The password is read from FOLIO_SEED_PASSWORD so it never appears in the
// process list:
//
//	FOLIO_SEED_PASSWORD='...' seed -email admin@example.com -name "Site Admin"
//
// Without it a strong password is generated and printed once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sethvargo/go-password/password"

	"github.com/aussiebroadwan/folio/internal/folio/app"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	email := flag.String("email", "", "admin email (required)")
	name := flag.String("name", "", "admin display name")
	flag.Parse()

	if err := run(*envFile, *email, *name, os.Getenv("FOLIO_SEED_PASSWORD")); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func run(envFile, email, name, pw string) error {
	if email == "" {
		return errors.New("-email is required")
	}
	policy := service.DefaultPasswordPolicy()
	generated := pw == ""
	if generated {
		var err error
		if pw, err = generatePassword(policy, email, name); err != nil {
			return err
		}
	}

	cfg, err := app.LoadConfig(envFile)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	ctx := slogx.WithContext(context.Background(), logger)

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("load pepper: %w", err)
	}
	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	accounts := &service.AccountService{
		Store:  st,
		Hasher: cryptox.NewHasher(pepper),
		Policy: policy,
	}
	acct, err := accounts.Seed(ctx, email, pw, name)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySeeded) {
			logger.Info("accounts already exist, nothing to do")
			return nil
		}
		return err
	}

	logger.Info("admin account created", "account_id", acct.ID, "email", acct.Email)
	if generated {
		fmt.Printf("generated password for %s: %s\n", acct.Email, pw)
	}
	return nil
}

// generatePassword draws random passwords until one satisfies policy.
func generatePassword(policy service.PasswordPolicy, userInputs ...string) (string, error) {
	for range 10 {
		pw, err := password.Generate(24, 4, 4, false, false)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		if policy.Evaluate(pw, userInputs...).Valid {
			return pw, nil
		}
	}
	return "", errors.New("could not generate a password that satisfies the policy")
}
