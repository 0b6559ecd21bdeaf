package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"credit-automation/internal/domain"
)

// paramFlags are the runtime parameters of a subscription as typed on the command line.
type paramFlags struct {
	lower           string
	upper           string
	target          string
	collateralAsset uint64
	debtAsset       uint64
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.lower, "lower", "0", "lower ratio threshold (e.g. 1.5 for 150%)")
	cmd.Flags().StringVar(&p.upper, "upper", "0", "upper ratio threshold")
	cmd.Flags().StringVar(&p.target, "target", "0", "target ratio after a rebalance")
	cmd.Flags().Uint64Var(&p.collateralAsset, "collateral-asset", 0, "collateral asset id")
	cmd.Flags().Uint64Var(&p.debtAsset, "debt-asset", 0, "debt asset id")
}

func (p *paramFlags) params() (domain.RuntimeParams, error) {
	var out domain.RuntimeParams
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"lower", p.lower, &out.LowerThreshold},
		{"upper", p.upper, &out.UpperThreshold},
		{"target", p.target, &out.TargetRatio},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return out, fmt.Errorf("invalid --%s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	out.CollateralAssetID = p.collateralAsset
	out.DebtAssetID = p.debtAsset
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseSubID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid subscription id %q", s)
	}
	return id, nil
}

func newSubCommand(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Manage subscriptions",
		Long: `Create and modify subscriptions. Every command acts as --owner, and only the
owner of a subscription may change it.

Examples:
  automation sub activate --owner 0xA1... --bundle 0 --upper 2.2 --target 2.0 \
      --collateral-asset 1 --debt-asset 2
  automation sub disable 3 --owner 0xA1...`,
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "owner address (hex)")
	_ = cmd.MarkPersistentFlagRequired("owner")

	ownerAddr := func() (common.Address, error) { return parseAddress(owner) }

	var activateParams paramFlags
	var bundleID int64
	activate := &cobra.Command{
		Use:   "activate",
		Short: "Subscribe a position to a bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ownerAddr()
			if err != nil {
				return err
			}
			params, err := activateParams.params()
			if err != nil {
				return err
			}
			id, err := opts.app.manager.Activate(cmd.Context(), addr, bundleID, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %d active on bundle %d\n", id, bundleID)
			return nil
		},
	}
	activate.Flags().Int64Var(&bundleID, "bundle", 0, "bundle id")
	activateParams.register(activate)

	var updateParams paramFlags
	update := &cobra.Command{
		Use:   "update <sub-id>",
		Short: "Replace the runtime parameters of a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ownerAddr()
			if err != nil {
				return err
			}
			id, err := parseSubID(args[0])
			if err != nil {
				return err
			}
			params, err := updateParams.params()
			if err != nil {
				return err
			}
			if err := opts.app.manager.Update(cmd.Context(), addr, id, params); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %d updated\n", id)
			return nil
		},
	}
	updateParams.register(update)

	toggle := func(use string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <sub-id>",
			Short: fmt.Sprintf("Set a subscription's active flag to %t", active),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				addr, err := ownerAddr()
				if err != nil {
					return err
				}
				id, err := parseSubID(args[0])
				if err != nil {
					return err
				}
				if err := opts.app.manager.SetActive(cmd.Context(), addr, id, active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscription %d %sd\n", id, use)
				return nil
			},
		}
	}

	remove := &cobra.Command{
		Use:   "remove <sub-id>",
		Short: "Delete a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ownerAddr()
			if err != nil {
				return err
			}
			id, err := parseSubID(args[0])
			if err != nil {
				return err
			}
			if err := opts.app.manager.Remove(cmd.Context(), addr, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %d removed\n", id)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the owner's subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ownerAddr()
			if err != nil {
				return err
			}
			subs, err := opts.app.manager.ListByOwner(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tBUNDLE\tACTIVE\tLOWER\tUPPER\tTARGET\tCOLL\tDEBT")
			fmt.Fprintln(w, "--\t------\t------\t-----\t-----\t------\t----\t----")
			for _, s := range subs {
				p := s.Params
				fmt.Fprintf(w, "%d\t%d\t%t\t%s\t%s\t%s\t%d\t%d\n",
					s.ID, s.BundleID, s.Active,
					p.LowerThreshold, p.UpperThreshold, p.TargetRatio,
					p.CollateralAssetID, p.DebtAssetID)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(activate, update, toggle("enable", true), toggle("disable", false), remove, list)
	return cmd
}
