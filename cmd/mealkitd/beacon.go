package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/config"
	pgstore "github.com/PaulFidika/mealkit/storage/postgres"
)

// issueBeaconCommand prints a signed payload for a hall's QR code or BLE
// beacon. Reissue after rotating the hall's secret reference.
func issueBeaconCommand() *cobra.Command {
	var spID, code string
	cmd := &cobra.Command{
		Use:   "issue-beacon",
		Short: "Print a signed beacon payload for a service point",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			sp, err := pgstore.NewStore(pool, cfg.DatabaseSchema).Get(ctx, spID)
			if err != nil {
				return fmt.Errorf("service point %q: %w", spID, err)
			}
			master, err := cfg.MasterSecret()
			if err != nil {
				return err
			}
			secrets, err := beacon.NewDerivedSecrets(master)
			if err != nil {
				return err
			}
			secret, err := secrets.Secret(ctx, sp.ID, sp.SecretRef)
			if err != nil {
				return err
			}
			if code == "" {
				code = "QR-" + sp.ID
			}
			_, payload, err := beacon.Issue(beacon.Fields{
				ServicePointID: sp.ID,
				Name:           sp.Name,
				Code:           code,
				Latitude:       sp.Latitude,
				Longitude:      sp.Longitude,
				RadiusMeters:   sp.RadiusMeters,
			}, secret, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return err
		},
	}
	cmd.Flags().StringVar(&spID, "service-point", "", "service point id")
	cmd.Flags().StringVar(&code, "code", "", "printed code (default QR-<id>)")
	_ = cmd.MarkFlagRequired("service-point")
	return cmd
}
