package cmd

import (
	"context"
	"fmt"
	"time"

	identityrepository "medislot/internal/identity/repository"
	identityservice "medislot/internal/identity/service"
	identityvalidator "medislot/internal/identity/validator"
	slotrepository "medislot/internal/slots/repository"
	slotservice "medislot/internal/slots/service"
	slotvalidator "medislot/internal/slots/validator"
	"medislot/pkg/auth"
	"medislot/pkg/config"
	"medislot/pkg/model"

	"github.com/spf13/cobra"
)

const seedPassword = "Passw0rd!"

var seedAccounts = []identityservice.SeedAccount{
	{Name: "Admin", Email: "admin@example.com", Password: seedPassword, Role: auth.RoleAdmin},
	{Name: "Test Patient", Email: "patient@example.com", Password: seedPassword, Role: auth.RolePatient},
}

type seedOptions struct {
	days       int
	dayStart   time.Duration
	dayEnd     time.Duration
	slotLength time.Duration
	weekends   bool
	skipSlots  bool
}

func newSeedCmd() *cobra.Command {
	opts := seedOptions{}

	c := &cobra.Command{
		Use:   "seed",
		Short: "Create the default accounts and a slot grid",
		Long: "Creates a verified admin and a verified patient if they do not exist, " +
			"then lays out bookable slots starting today. Re-running is safe.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := connect()
			defer cfg.GracefulShutdown()
			return runSeed(cmd, cfg, opts)
		},
	}

	c.Flags().IntVar(&opts.days, "days", 30, "number of days to generate slots for")
	c.Flags().DurationVar(&opts.dayStart, "day-start", 9*time.Hour, "offset from midnight of the first slot")
	c.Flags().DurationVar(&opts.dayEnd, "day-end", 17*time.Hour, "offset from midnight by which the last slot ends")
	c.Flags().DurationVar(&opts.slotLength, "slot-length", 30*time.Minute, "length of each slot")
	c.Flags().BoolVar(&opts.weekends, "weekends", false, "also generate slots on Saturday and Sunday")
	c.Flags().BoolVar(&opts.skipSlots, "skip-slots", false, "only create the accounts")
	return c
}

func runSeed(cmd *cobra.Command, cfg *config.Config, opts seedOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	identity := identityservice.NewIdentityService(
		identityrepository.NewMongoUserRepository(cfg),
		identityvalidator.NewUserValidator(cfg.Log),
		auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL),
		identityservice.NewBcryptHasher(cfg.BcryptCost),
		identityservice.NewLogChallengeSender(cfg.Log),
		cfg,
	)

	for _, account := range seedAccounts {
		created, err := ensureAccount(ctx, identity, account)
		if err != nil {
			return fmt.Errorf("seed %s: %w", account.Email, err)
		}
		if created {
			fmt.Fprintf(out, "created %s account %s\n", account.Role, account.Email)
		} else {
			fmt.Fprintf(out, "%s already exists\n", account.Email)
		}
	}

	if opts.skipSlots {
		return nil
	}

	slots := slotservice.NewSlotService(
		slotrepository.NewMongoSlotRepository(cfg),
		slotvalidator.NewSlotValidator(cfg.Log),
		cfg,
	)

	inserted, err := slots.Generate(ctx, model.GridSpec{
		StartDate:    time.Now(),
		Days:         opts.days,
		DayStart:     opts.dayStart,
		DayEnd:       opts.dayEnd,
		SlotLength:   opts.slotLength,
		WeekdaysOnly: !opts.weekends,
		Location:     cfg.Location(),
	})
	if err != nil {
		return fmt.Errorf("generate slots: %w", err)
	}

	fmt.Fprintf(out, "inserted %d slots\n", inserted)
	return nil
}

func ensureAccount(ctx context.Context, identity identityservice.IdentityService, account identityservice.SeedAccount) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return identity.EnsureAccount(ctx, account)
}
