package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"finledger/internal/models"
	"finledger/internal/settings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	setAutoLock     int
	setMaxFailed    int
	setPrivacyMask  bool
	setTaxRegime    string
	setInflation    string
	setEduInflation string
	secretFromFlag  string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change global settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more settings",
	Long:  "Only the flags given are changed. Out-of-range values are rejected and nothing is written.",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var settingsPINCmd = &cobra.Command{
	Use:   "pin",
	Short: "Set the unlock PIN (4-8 digits, read from stdin unless --value is given)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetSecret(cmd, "PIN", (*settings.Service).SetPIN)
	},
}

var settingsRevealCmd = &cobra.Command{
	Use:   "reveal-secret",
	Short: "Set the secret that lifts the privacy mask",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetSecret(cmd, "reveal secret", (*settings.Service).SetRevealSecret)
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default settings and clear the PIN and reveal secret",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	f := settingsSetCmd.Flags()
	f.IntVar(&setAutoLock, "auto-lock", 0, "Auto-lock after this many minutes (1-10)")
	f.IntVar(&setMaxFailed, "max-failed-attempts", 0, "Failed unlocks before lockout (1-20)")
	f.BoolVar(&setPrivacyMask, "privacy-mask", false, "Mask amounts until revealed")
	f.StringVar(&setTaxRegime, "tax-regime", "", "Tax regime (old, new)")
	f.StringVar(&setInflation, "inflation", "", "Expected inflation rate in percent")
	f.StringVar(&setEduInflation, "education-inflation", "", "Expected education inflation rate in percent")

	settingsPINCmd.Flags().StringVar(&secretFromFlag, "value", "", "Value to set (avoid: visible in shell history)")
	settingsRevealCmd.Flags().StringVar(&secretFromFlag, "value", "", "Value to set (avoid: visible in shell history)")

	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPINCmd)
	settingsCmd.AddCommand(settingsRevealCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}

// patchFromFlags builds a Patch from the flags the user actually passed.
func patchFromFlags(cmd *cobra.Command) (settings.Patch, error) {
	var p settings.Patch
	flags := cmd.Flags()
	if flags.Changed("auto-lock") {
		p.AutoLockMinutes = &setAutoLock
	}
	if flags.Changed("max-failed-attempts") {
		p.MaxFailedAttempts = &setMaxFailed
	}
	if flags.Changed("privacy-mask") {
		p.PrivacyMask = &setPrivacyMask
	}
	if flags.Changed("tax-regime") {
		p.TaxRegime = &setTaxRegime
	}
	for _, r := range []struct {
		flag string
		raw  string
		dst  **decimal.Decimal
	}{
		{"inflation", setInflation, &p.InflationRate},
		{"education-inflation", setEduInflation, &p.EducationInflationRate},
	} {
		if !flags.Changed(r.flag) {
			continue
		}
		d, err := decimal.NewFromString(r.raw)
		if err != nil {
			return p, fmt.Errorf("invalid --%s %q: %w", r.flag, r.raw, err)
		}
		*r.dst = &d
	}
	return p, nil
}

// publicSettings hides the secret hashes.
func publicSettings(g models.GlobalSettings) map[string]any {
	return map[string]any{
		"autoLockMinutes":        g.AutoLockMinutes,
		"maxFailedAttempts":      g.MaxFailedAttempts,
		"privacyMask":            g.PrivacyMask,
		"pinSet":                 g.PINHash != "",
		"revealSecretSet":        g.RevealSecretHash != "",
		"taxRegime":              g.TaxRegime,
		"inflationRate":          g.InflationRate,
		"educationInflationRate": g.EducationInflationRate,
		"currency":               g.Currency,
		"emergencyContacts":      g.EmergencyContacts,
		"dependents":             g.Dependents,
		"profile":                g.Profile,
		"updatedAt":              g.UpdatedAt,
	}
}

func printSettings(w io.Writer, g models.GlobalSettings) {
	fmt.Fprintf(w, "Auto-lock:            %d min\n", g.AutoLockMinutes)
	fmt.Fprintf(w, "Max failed attempts:  %d\n", g.MaxFailedAttempts)
	fmt.Fprintf(w, "Privacy mask:         %v\n", g.PrivacyMask)
	fmt.Fprintf(w, "PIN set:              %v\n", g.PINHash != "")
	fmt.Fprintf(w, "Tax regime:           %s\n", g.TaxRegime)
	fmt.Fprintf(w, "Inflation:            %s%%\n", g.InflationRate)
	fmt.Fprintf(w, "Education inflation:  %s%%\n", g.EducationInflationRate)
	fmt.Fprintf(w, "Currency:             %s\n", g.Currency)
	fmt.Fprintf(w, "Emergency contacts:   %d\n", len(g.EmergencyContacts))
	fmt.Fprintf(w, "Dependents:           %d\n", len(g.Dependents))
	if g.Profile != nil {
		fmt.Fprintf(w, "Profile:              %s\n", g.Profile.Name)
	}
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := settings.NewService(env.store, env.logger).Get(cmd.Context())
	if err != nil {
		return err
	}
	return render(publicSettings(g), func(w io.Writer) { printSettings(w, g) })
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	patch, err := patchFromFlags(cmd)
	if err != nil {
		return err
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := settings.NewService(env.store, env.logger).Update(cmd.Context(), patch)
	if err != nil {
		return err
	}
	return render(publicSettings(g), func(w io.Writer) { printSettings(w, g) })
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := settings.NewService(env.store, env.logger).Reset(cmd.Context())
	if err != nil {
		return err
	}
	return render(publicSettings(g), func(w io.Writer) { printSettings(w, g) })
}

func runSetSecret(cmd *cobra.Command, what string, set func(*settings.Service, context.Context, string) error) error {
	value := secretFromFlag
	if value == "" {
		fmt.Fprintf(os.Stderr, "Enter %s: ", what)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read %s: %w", what, err)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	if err := set(settings.NewService(env.store, env.logger), cmd.Context(), value); err != nil {
		return err
	}
	fmt.Printf("%s updated\n", strings.ToUpper(what[:1])+what[1:])
	return nil
}
