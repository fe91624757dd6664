package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/profilestack/internal/config"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/reconcile"
	"github.com/kalambet/profilestack/internal/session"
)

// --- guest ---

var guestCmd = &cobra.Command{
	Use:   "guest <name>",
	Short: "Start a guest profile stored only on this device",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		p, err := d.ctrl.BeginGuest(strings.Join(args, " "))
		if err != nil {
			return withHint(err)
		}
		printSuccess("Guest profile started for %s %s", p.FirstName, p.LastName)
		return nil
	},
}

// --- login ---

var errNoChoice = errors.New("login abandoned: no profile was chosen")

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a Google ID token and sync the guest profile",
	Long: `Sign in with a Google ID token.

If this device holds a guest profile, it is reconciled with the account:
  - an empty account adopts the guest profile,
  - an account with data and an empty guest profile is used as is,
  - when both hold data you choose which one to keep (or pass --keep).

Keeping the local profile replaces every collection on the account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		credential, _ := cmd.Flags().GetString("credential")
		keep, _ := cmd.Flags().GetString("keep")
		if credential == "" {
			credential = os.Getenv("PROFILESTACK_CREDENTIAL")
		}
		if credential == "" {
			return fmt.Errorf("--credential is required (or set PROFILESTACK_CREDENTIAL)")
		}
		if keep != "" && keep != "local" && keep != "remote" {
			return fmt.Errorf("--keep must be local or remote, got %q", keep)
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		settled, err := runLogin(cmd.Context(), d, credential, keep, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return withHint(err)
		}

		switch {
		case settled.Classification == reconcile.AdoptLocal:
			printSuccess("Logged in as %s; guest profile saved to the account", settled.Credentials.User.Email)
		case settled.Resolution == reconcile.KeepLocal:
			printSuccess("Logged in as %s; account profile replaced by the guest profile", settled.Credentials.User.Email)
		case settled.LocalConsumed:
			printSuccess("Logged in as %s; guest profile discarded", settled.Credentials.User.Email)
		default:
			printSuccess("Logged in as %s", settled.Credentials.User.Email)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("credential", "", "Google ID token")
	loginCmd.Flags().String("keep", "", "on conflict keep the local or remote profile without asking")
}

// runLogin authenticates and reconciles the guest snapshot with the account.
// A conflict is settled by keep, or by asking on in; EOF abandons the login
// without touching either profile.
func runLogin(ctx context.Context, d *device, credential, keep string, in io.Reader, out io.Writer) (*reconcile.Settlement, error) {
	r := reconcile.NewResolver(d.client, d.client, d.ctrl)
	outcome, err := r.Login(ctx, credential, d.ctrl.LocalSnapshot())
	if err != nil {
		return nil, err
	}
	if outcome.Settled != nil {
		return outcome.Settled, nil
	}

	pending := outcome.Pending
	var res reconcile.Resolution
	switch keep {
	case "local":
		res = reconcile.KeepLocal
	case "remote":
		res = reconcile.KeepRemote
	default:
		res, err = chooseResolution(in, out, pending.Local(), pending.Remote())
		if err != nil {
			if cerr := pending.Cancel(); cerr != nil {
				return nil, errors.Join(err, cerr)
			}
			return nil, err
		}
	}

	if res == reconcile.KeepLocal {
		return pending.ResolveWithLocal(ctx)
	}
	return pending.ResolveWithRemote(ctx)
}

// chooseResolution asks until it reads a valid answer.
func chooseResolution(in io.Reader, out io.Writer, local, remote profile.Profile) (reconcile.Resolution, error) {
	fmt.Fprintln(out, "This account already has a profile and this device holds a guest profile.")
	fmt.Fprintf(out, "  local:  %s\n", describeProfile(local))
	fmt.Fprintf(out, "  remote: %s\n", describeProfile(remote))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Keep which profile? [local/remote]: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil {
				return 0, fmt.Errorf("reading choice: %w", err)
			}
			return 0, errNoChoice
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "l", "local":
			return reconcile.KeepLocal, nil
		case "r", "remote":
			return reconcile.KeepRemote, nil
		}
		fmt.Fprintln(out, "Please answer local or remote.")
	}
}

// --- logout ---

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and delete guest data on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		if err := d.ctrl.Logout(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit the active profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := openDevice()
		if err != nil {
			return err
		}
		p := d.ctrl.Active()
		if p == nil {
			return withHint(session.ErrNoActiveProfile)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}
		printProfile(out, *p)
		return nil
	},
}

var profileRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the account profile from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		if _, err := d.ctrl.Refresh(cmd.Context()); err != nil {
			return withHint(err)
		}
		printSuccess("Profile refreshed")
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a profile field (firstName, lastName, email, phone, location, bio, ...)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		d, err := openDevice()
		if err != nil {
			return err
		}
		p := d.ctrl.Active()
		if p == nil {
			return withHint(session.ErrNoActiveProfile)
		}
		fields, err := setField(p.Fields, key, value)
		if err != nil {
			return err
		}
		if _, err := d.ctrl.UpdateFields(cmd.Context(), fields); err != nil {
			return withHint(err)
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the profile fields as JSON in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		p := d.ctrl.Active()
		if p == nil {
			return withHint(session.ErrNoActiveProfile)
		}

		data, err := json.MarshalIndent(p.Fields, "", "  ")
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "profilestack-fields-*.json")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		fields, err := decodeFields(edited)
		if err != nil {
			return err
		}
		if _, err := d.ctrl.UpdateFields(cmd.Context(), fields); err != nil {
			return withHint(err)
		}

		printSuccess("Profile updated")
		return nil
	},
}

func init() {
	profileShowCmd.Flags().Bool("json", false, "print the profile as JSON")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileRefreshCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileEditCmd)
}

// setField returns f with the JSON-named field key set to value.
func setField(f profile.Fields, key, value string) (profile.Fields, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return f, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return f, err
	}
	m[key] = value
	data, err = json.Marshal(m)
	if err != nil {
		return f, err
	}
	out, err := decodeFields(data)
	if err != nil {
		return f, fmt.Errorf("unknown profile field %q", key)
	}
	return out, nil
}

func decodeFields(data []byte) (profile.Fields, error) {
	var f profile.Fields
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return profile.Fields{}, fmt.Errorf("invalid profile fields: %w", err)
	}
	return f, nil
}

// --- entries ---

var addCmd = &cobra.Command{
	Use:   "add <collection> <json>",
	Short: "Add an entry to a collection",
	Long: `Add an entry to a collection of the active profile.

Examples:
  profilestack add skills '{"name":"Go","level":"ADVANCED"}'
  profilestack add education '{"institution":"MIT","degree":"BSc"}'
  profilestack add projects '{"title":"profilestack","techStack":["Go"]}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		e, err := profile.DecodeEntry(kind, []byte(args[1]))
		if err != nil {
			return err
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		saved, err := d.ctrl.AddEntry(cmd.Context(), e)
		if err != nil {
			return withHint(err)
		}
		printSuccess("Added %s %s", kind, saved.EntryID())
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <collection> <id> <json>",
	Short: "Replace an entry of a collection",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		e, err := profile.DecodeEntry(kind, []byte(args[2]))
		if err != nil {
			return err
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		if _, err := d.ctrl.UpdateEntry(cmd.Context(), profile.WithID(e, args[1])); err != nil {
			return withHint(err)
		}
		printSuccess("Updated %s %s", kind, args[1])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <collection> <id>",
	Short: "Remove an entry from a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		if err := d.ctrl.DeleteEntry(cmd.Context(), kind, args[1]); err != nil {
			return withHint(err)
		}
		printSuccess("Removed %s %s", kind, args[1])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += colorize(colorYellow, " (from "+k.EnvVar+")")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
