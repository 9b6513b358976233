package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/trainer-booking/internal/availability"
	"github.com/iliyamo/trainer-booking/internal/cancellation"
	"github.com/iliyamo/trainer-booking/internal/config"
	"github.com/iliyamo/trainer-booking/internal/database"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
	"github.com/iliyamo/trainer-booking/internal/utils"
)

const dateLayout = "2006-01-02"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "bookingctl operates the trainer booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newQuoteCmd(), newSlotsCmd(), newStatsCmd(), newTokenCmd(), newHashKeyCmd())
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

func openDB() (*sql.DB, error) {
	c := config.LoadDB()
	return database.Open(c.User, c.Pass, c.Host, c.Port, c.Name)
}

func newQuoteCmd() *cobra.Command {
	var (
		resDate, cancelDate, tz string
		amount                  int64
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the cancellation fee for a lesson date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := loadLocation(tz)
			if err != nil {
				return err
			}
			lesson, err := time.ParseInLocation(dateLayout, resDate, loc)
			if err != nil {
				return fmt.Errorf("--reservation-date: %w", err)
			}
			at := time.Now().In(loc)
			if cancelDate != "" {
				if at, err = time.ParseInLocation(dateLayout, cancelDate, loc); err != nil {
					return fmt.Errorf("--cancel-date: %w", err)
				}
			}
			q := cancellation.NewCalculator(loc).Quote(lesson, at)
			out := struct {
				cancellation.Quote
				Amount int64 `json:"amount,omitempty"`
				Fee    int64 `json:"fee,omitempty"`
				Refund int64 `json:"refund,omitempty"`
			}{Quote: q, Amount: amount}
			if amount > 0 {
				out.Fee, out.Refund = cancellation.FeeAmounts(amount, q.FeeRate)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&resDate, "reservation-date", "", "lesson date, YYYY-MM-DD")
	cmd.Flags().StringVar(&cancelDate, "cancel-date", "", "cancellation date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&tz, "tz", envOr("BUSINESS_TZ", "Asia/Tokyo"), "business timezone")
	cmd.Flags().Int64Var(&amount, "amount", 0, "lesson price, to print fee and refund")
	_ = cmd.MarkFlagRequired("reservation-date")
	return cmd
}

func newSlotsCmd() *cobra.Command {
	var (
		trainer     string
		year, month int
		multi       bool
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List open start times for a trainer and month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if month < 1 || month > 12 {
				return errors.New("--month must be between 1 and 12")
			}
			sched, err := config.LoadSchedule(os.Getenv("SCHEDULE_FILE"), envOr("BUSINESS_TZ", "Asia/Tokyo"))
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, sched.Location)
			res, err := repository.NewReservationRepo(db).ListActiveByTrainer(cmd.Context(), trainer,
				first.AddDate(0, 0, -1), first.AddDate(0, 1, 1))
			if err != nil {
				return err
			}
			existing := make([]availability.Booking, 0, len(res))
			for _, r := range res {
				existing = append(existing, availability.Booking{ID: r.ID, TrainerID: r.TrainerID, Start: r.StartAt, End: r.EndAt, Status: r.Status})
			}
			slots := availability.NewEngine(sched, time.Now).Month(year, time.Month(month), trainer, multi, existing)
			return printJSON(cmd.OutOrStdout(), slots)
		},
	}
	now := time.Now()
	cmd.Flags().StringVar(&trainer, "trainer", "", "trainer id")
	cmd.Flags().IntVar(&year, "year", now.Year(), "year")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "month, 1-12")
	cmd.Flags().BoolVar(&multi, "multiple-dogs", false, "use the multi-dog lesson length")
	_ = cmd.MarkFlagRequired("trainer")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print saga and retry failure statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return errors.New("--days must be positive")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			since := time.Now().AddDate(0, 0, -days)
			txs, err := repository.NewTransactionLogRepo(db).Since(cmd.Context(), since)
			if err != nil {
				return err
			}
			retries, err := repository.NewRetryLogRepo(db).Since(cmd.Context(), since)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"transactions": saga.FailureStatistics(txs, days),
				"retries":      retry.Statistics(retries, days),
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "look-back period in days")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		customer uint64
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a customer access token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), customer, "customer", ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"token": tok.Token, "expires_at": tok.Exp})
		},
	}
	cmd.Flags().Uint64Var(&customer, "customer", 0, "customer id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an admin key for ADMIN_KEY_HASH, generating one when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				b := make([]byte, 24)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				key = hex.EncodeToString(b)
			}
			hash, err := utils.HashKey(key, 0)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"key": key, "hash": hash})
		},
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
