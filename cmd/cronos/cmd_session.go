package main

import (
	"fmt"
	"os"

	"cronos/internal/session"

	"github.com/spf13/cobra"
)

// sessionCmd groups maintenance commands for persisted sessions
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <identity>",
	Short: "Show the persisted state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := args[0]
		if err := session.ValidateIdentity(identity); err != nil {
			return err
		}

		md, ok, err := session.LoadMetadata(cfg.MetadataPath(identity))
		if err != nil {
			return err
		}
		cookies, hasCookies, err := session.LoadCookies(cfg.CookiePath(identity))
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render(identity))
		fmt.Printf("  directory: %s\n", cfg.SessionDir(identity))
		if !ok {
			fmt.Println("  metadata:  " + mutedStyle.Render("none"))
		} else {
			fmt.Printf("  proxy:     %s\n", orNone(md.Proxy))
			fmt.Printf("  vpn:       %t\n", md.UseVPN)
		}
		if hasCookies {
			fmt.Printf("  cookies:   %d\n", len(cookies))
		} else {
			fmt.Println("  cookies:   " + mutedStyle.Render("none"))
		}
		if _, err := os.Stat(cfg.QRPath(identity)); err == nil {
			fmt.Println("  qr code:   " + warningStyle.Render(cfg.QRPath(identity)))
		}
		return nil
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout <identity>",
	Short: "Log a session out and delete its saved cookies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.manager.LogoutSession(args[0]); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("logged out") + " " + args[0])
		return nil
	},
}

var sessionDestroyCmd = &cobra.Command{
	Use:   "destroy <identity>",
	Short: "Close a session and delete its directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.manager.DestroySession(args[0]); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("destroyed") + " " + args[0])
		return nil
	},
}

var sessionProxyCmd = &cobra.Command{
	Use:   "change-proxy <identity> [proxy]",
	Short: "Switch the proxy of a session",
	Long: `Restarts the session browser behind the given proxy and restores its cookies.
Without a proxy argument the next entry of the pool is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		identity := args[0]
		var applied string
		if len(args) == 2 {
			applied = args[1]
			err = a.manager.ChangeProxy(ctx, identity, applied)
		} else {
			applied, err = a.manager.RotateProxy(ctx, identity)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s -> %s\n", successStyle.Render("proxy changed"), identity, applied)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
	sessionCmd.AddCommand(sessionDestroyCmd)
	sessionCmd.AddCommand(sessionProxyCmd)
}

func orNone(s string) string {
	if s == "" {
		return mutedStyle.Render("none")
	}
	return s
}
