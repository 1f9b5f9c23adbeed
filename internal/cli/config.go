package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/selectstar/dbt-impact-report-action/internal/config"
	"github.com/selectstar/dbt-impact-report-action/internal/output"
	"github.com/selectstar/dbt-impact-report-action/internal/render"
)

type configInfo struct {
	ConfigFile string           `json:"config_file"`
	Settings   []config.Setting `json:"settings"`
	Problems   []string         `json:"problems"`
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the resolved configuration with secrets hidden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := getWriter(cmd)

			configFile, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(config.Options{
				ConfigFile:     configFile,
				EnvFile:        envFile,
				SkipValidation: true,
			})
			if err != nil {
				return cmdErr(err, output.ErrValidation)
			}

			info := configInfo{
				ConfigFile: cfg.ConfigFile,
				Settings:   cfg.Printable(),
				Problems:   []string{},
			}

			var verr *config.ValidationError
			if err := cfg.Validate(); errors.As(err, &verr) {
				info.Problems = verr.Problems
				for _, p := range verr.Problems {
					w.Warn("%s", p)
				}
			}

			w.Success(info, formatConfigHuman(info))
			return nil
		},
	}
}

func formatEnvValue(val string) string {
	if val == "" {
		return "(not set)"
	}
	return val
}

func settingWidth(settings []config.Setting) int {
	width := 0
	for _, s := range settings {
		width = max(width, len(s.Name))
	}
	return width + 1
}

func formatConfigHuman(info configInfo) string {
	if !render.ColorsEnabled() {
		return formatConfigPlain(info)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	lines := []string{headerStyle.Render("Impact Report Configuration"), ""}
	if info.ConfigFile != "" {
		lines = append(lines, fmt.Sprintf("  %s %s", keyStyle.Render("Config file:"), valStyle.Render(info.ConfigFile)))
	}

	width := settingWidth(info.Settings)
	for _, s := range info.Settings {
		key := fmt.Sprintf("%-*s", width, s.Name+":")
		indicator := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
		if s.Value == "" {
			indicator = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s", indicator, keyStyle.Render(key), valStyle.Render(formatEnvValue(s.Value))))
	}

	return strings.Join(lines, "\n")
}

func formatConfigPlain(info configInfo) string {
	var lines []string
	if info.ConfigFile != "" {
		lines = append(lines, "Config file: "+info.ConfigFile)
	}

	width := settingWidth(info.Settings)
	for _, s := range info.Settings {
		lines = append(lines, fmt.Sprintf("%-*s %s", width, s.Name+":", formatEnvValue(s.Value)))
	}
	return strings.Join(lines, "\n")
}
