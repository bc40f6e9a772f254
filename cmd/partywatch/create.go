package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/DoyleJ11/party-client/internal/api"
)

const qrSize = 256

func newCreateCmd(a *app) *cobra.Command {
	var (
		req     api.CreateRequest
		joinURL string
		showQR  bool
		pngPath string
		follow  bool
		opts    watchOptions
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Host a new party and print its code.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.api.CreateSession(cmd.Context(), req)
			if err != nil {
				return a.combine(err)
			}
			a.remember(res)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "party code: %s\nsession:    %s\n", res.PartyCode, res.SessionID)

			share := shareTarget(joinURL, res.PartyCode)
			if showQR {
				if err := printQR(out, share); err != nil {
					return a.combine(err)
				}
			}
			if pngPath != "" {
				if err := qrcode.WriteFile(share, qrcode.Medium, qrSize, pngPath); err != nil {
					return a.combine(fmt.Errorf("write qr png: %w", err))
				}
				fmt.Fprintf(out, "qr code written to %s\n", pngPath)
			}

			if !follow {
				return a.combine(nil)
			}
			return a.combine(a.watch(cmd.Context(), out, []string{res.SessionID}, opts))
		},
	}
	cmd.Flags().IntVar(&req.MinPlayers, "min", 0, "minimum players, AI included (server default when 0)")
	cmd.Flags().IntVar(&req.MaxPlayers, "max", 0, "maximum players (server default when 0)")
	cmd.Flags().StringVar(&joinURL, "join-url", "", "join page the QR code points at; the code is appended")
	cmd.Flags().BoolVar(&showQR, "qr", false, "print a QR code for the join link")
	cmd.Flags().StringVar(&pngPath, "qr-png", "", "also write the QR code as a PNG file")
	cmd.Flags().BoolVar(&follow, "watch", false, "follow the new lobby after creating it")
	opts.register(cmd)
	return cmd
}

// shareTarget is the join link when a join page is configured, else the bare code.
func shareTarget(joinURL, code string) string {
	if joinURL == "" {
		return code
	}
	return strings.TrimRight(joinURL, "/") + "/" + code
}

func printQR(w io.Writer, content string) error {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("qr: %w", err)
	}
	_, err = io.WriteString(w, q.ToString(false))
	return err
}
