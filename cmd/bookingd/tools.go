package main

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"

	"github.com/example/booking-engine/internal/recurrence"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate BOOKING_SESSION_HASH_KEY and BOOKING_SESSION_BLOCK_KEY values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := securecookie.GenerateRandomKey(32)
			block := securecookie.GenerateRandomKey(32)
			if hash == nil || block == nil {
				return errors.New("failed to read random bytes")
			}
			cmd.Printf("export BOOKING_SESSION_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(hash))
			cmd.Printf("export BOOKING_SESSION_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(block))
			return nil
		},
	}
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("bookingd %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var resourceID, date string

	c := &cobra.Command{
		Use:   "slots",
		Short: "Print the free slots of a resource on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := recurrence.ParseDate(date)
			if err != nil {
				return err
			}

			rt, err := opts.open(cmd.Context(), true, false)
			if err != nil {
				return err
			}
			defer rt.close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			slots, err := svc.availability.ResourceSlots(cmd.Context(), resourceID, day)
			if err != nil {
				return err
			}
			if len(slots.Slots) == 0 {
				cmd.Println("no free slots")
				return nil
			}
			for _, s := range slots.Slots {
				cmd.Printf("%s\t%s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
			}
			return nil
		},
	}

	c.Flags().StringVar(&resourceID, "resource", "", "resource id")
	c.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	_ = c.MarkFlagRequired("resource")
	_ = c.MarkFlagRequired("date")
	return c
}
