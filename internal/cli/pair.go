package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/DroidClaw/DroidClaw/internal/config"
)

// pairPayload is what the companion app scans to find this agent.
type pairPayload struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Generate a pairing QR code for the companion app",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Device.Endpoint == "" {
			return fmt.Errorf("device.endpoint is not configured; set DROIDCLAW_DEVICE_ENDPOINT first")
		}

		// A fresh token invalidates any earlier pairing.
		cfg.Device.PairToken = uuid.NewString()
		configPath, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if err := config.Save(cfg, configPath); err != nil {
			return fmt.Errorf("failed to persist pairing token: %w", err)
		}

		payload, err := json.Marshal(pairPayload{
			Endpoint: cfg.Device.Endpoint,
			Token:    cfg.Device.PairToken,
		})
		if err != nil {
			return err
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		qrPath := filepath.Join(home, ".droidclaw", "pair-qr.png")
		if err := os.MkdirAll(filepath.Dir(qrPath), 0o755); err != nil {
			return err
		}
		if err := qrcode.WriteFile(string(payload), qrcode.Medium, 512, qrPath); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}

		printHeader("🔗 DroidClaw Pair")
		fmt.Printf("Pairing QR code saved to: %s\n", qrPath)
		fmt.Println("Scan it with the companion app on your device.")
		return nil
	},
}
