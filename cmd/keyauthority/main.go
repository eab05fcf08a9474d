// Command keyauthority is a thin admin CLI over the key authority library.
// It drives the backend selected by configuration; with the secret-share
// backend and no redis, state lives only for the lifetime of the process.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	keyauthority "github.com/kashguard/go-key-authority"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:   "keyauthority",
		Short: "Delegated key authority admin surface",
	}
	root.AddCommand(
		newMintCmd(),
		newTransferCmd(),
		newWalletsCmd(),
		newDelegateeCmd(),
		newToolCmd(),
		newPermitCmd(false),
		newPermitCmd(true),
		newSessionCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// withAuthority builds, initializes and tears down the provider around fn.
func withAuthority(fn func(ctx context.Context, a *keyauthority.Authority) error) error {
	cfg, err := keyauthority.ConfigFromEnv()
	if err != nil {
		return err
	}
	a, err := keyauthority.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect cleanly")
		}
	}()
	return fn(ctx, a)
}

func parseAddress(flag, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: %q is not a valid address", flag, value)
	}
	return common.HexToAddress(value), nil
}

func newMintCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a new managed key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				addr, err := parseAddress("owner", owner)
				if err != nil {
					return err
				}
				rec, err := a.MintWallet(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Printf("key %s\npublic key %s\nowner %s\n", rec.ID, rec.PublicKey, rec.Owner.Hex())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner address")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTransferCmd() *cobra.Command {
	var keyID, caller, newOwner string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer key ownership (zero address burns the key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				callerAddr, err := parseAddress("caller", caller)
				if err != nil {
					return err
				}
				newAddr, err := parseAddress("new-owner", newOwner)
				if err != nil {
					return err
				}
				return a.TransferWalletOwnership(ctx, keyID, callerAddr, newAddr)
			})
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "key record id")
	cmd.Flags().StringVar(&caller, "caller", "", "current owner address")
	cmd.Flags().StringVar(&newOwner, "new-owner", "", "new owner address")
	for _, f := range []string{"key", "caller", "new-owner"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newWalletsCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "wallets",
		Short: "List keys owned by an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				addr, err := parseAddress("owner", owner)
				if err != nil {
					return err
				}
				recs, err := a.OwnedWallets(ctx, addr)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					fmt.Printf("%s\t%s\t%s\n", rec.ID, rec.Status, rec.Owner.Hex())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner address")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDelegateeCmd() *cobra.Command {
	var keyID, address string
	cmd := &cobra.Command{
		Use:   "delegatee {add|remove|list}",
		Short: "Manage a key's delegatees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				switch args[0] {
				case "add", "remove":
					addr, err := parseAddress("address", address)
					if err != nil {
						return err
					}
					if args[0] == "add" {
						return a.AddDelegatee(ctx, keyID, addr)
					}
					return a.RemoveDelegatee(ctx, keyID, addr)
				case "list":
					addrs, err := a.Delegatees(ctx, keyID)
					if err != nil {
						return err
					}
					for _, addr := range addrs {
						fmt.Println(addr.Hex())
					}
					return nil
				default:
					return fmt.Errorf("unknown delegatee action %q", args[0])
				}
			})
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "key record id")
	cmd.Flags().StringVar(&address, "address", "", "delegatee address")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newToolCmd() *cobra.Command {
	var keyID, programID string
	var disabled bool
	cmd := &cobra.Command{
		Use:   "tool {register|remove|enable|disable|list}",
		Short: "Manage a key's registered tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				switch args[0] {
				case "register":
					return a.RegisterTool(ctx, keyID, programID, keyauthority.ToolOptions{EnabledByDefault: !disabled})
				case "remove":
					return a.RemoveTool(ctx, keyID, programID)
				case "enable":
					return a.EnableTool(ctx, keyID, programID)
				case "disable":
					return a.DisableTool(ctx, keyID, programID)
				case "list":
					grants, err := a.RegisteredTools(ctx, keyID)
					if err != nil {
						return err
					}
					for _, g := range grants {
						delegatees := make([]string, 0, len(g.Delegatees))
						for _, d := range g.Delegatees {
							delegatees = append(delegatees, d.Hex())
						}
						fmt.Printf("%s\tenabled=%t\tdelegatees=%s\n", g.Tool.ProgramID, g.Tool.Enabled, strings.Join(delegatees, ","))
					}
					return nil
				default:
					return fmt.Errorf("unknown tool action %q", args[0])
				}
			})
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "key record id")
	cmd.Flags().StringVar(&programID, "program", "", "program content address")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register the tool disabled")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newPermitCmd(unpermit bool) *cobra.Command {
	use, short := "permit", "Permit a tool for a delegatee"
	if unpermit {
		use, short = "unpermit", "Remove a delegatee's tool permission"
	}
	var keyID, programID, delegatee string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				addr, err := parseAddress("delegatee", delegatee)
				if err != nil {
					return err
				}
				if unpermit {
					return a.UnpermitToolForDelegatee(ctx, keyID, programID, addr)
				}
				return a.PermitToolForDelegatee(ctx, keyID, programID, addr)
			})
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "key record id")
	cmd.Flags().StringVar(&programID, "program", "", "program content address")
	cmd.Flags().StringVar(&delegatee, "delegatee", "", "delegatee address")
	for _, f := range []string{"key", "program", "delegatee"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newSessionCmd() *cobra.Command {
	var keyID, signerKey string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Issue a session credential for executing tools on a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthority(func(ctx context.Context, a *keyauthority.Authority) error {
				signer, err := keyauthority.LocalSignerFromHex(signerKey)
				if err != nil {
					return err
				}
				cred, err := a.IssueSession(ctx, keyauthority.SessionRequest{
					Signer: signer,
					Resources: []keyauthority.ResourceAbility{
						{Resource: keyID, Ability: keyauthority.AbilityExecute},
					},
					Expiration: time.Now().Add(ttl),
				})
				if err != nil {
					return err
				}
				token, err := a.SessionToken(cred)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keyID, "key", "", "key record id")
	cmd.Flags().StringVar(&signerKey, "signer-key", "", "subject private key (hex)")
	cmd.Flags().DurationVar(&ttl, "ttl", 5*time.Minute, "requested credential lifetime")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("signer-key")
	return cmd
}
