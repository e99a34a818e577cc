package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OCAP2/replicator/internal/entity"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	File string
}

// DecodedPacket is the printable form of one state packet.
type DecodedPacket struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Created        uint64            `json:"created"`
	LastEdited     uint64            `json:"lastEdited"`
	UpdateDelta    uint64            `json:"updateDelta"`
	SimulatedDelta uint64            `json:"simulatedDelta"`
	Size           int               `json:"size"`
	Properties     []string          `json:"properties"`
	Values         entity.Properties `json:"values"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode [hex...]",
		Short: "Decode state packets",
		Long: `Decode one or more back to back state packets and print their contents.

Packets are read from hex arguments or, with --file, from a binary file.

Examples:
  replicator decode 0a1b2c...
  replicator decode --file packet.bin --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "binary file holding packets")
	return cmd
}

func runDecode(opts *DecodeOptions, cmd *cobra.Command, args []string) error {
	var data []byte
	switch {
	case opts.File != "":
		b, err := os.ReadFile(opts.File)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", opts.File, err)
		}
		data = b
	case len(args) > 0:
		b, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return fmt.Errorf("invalid hex input: %w", err)
		}
		data = b
	default:
		return fmt.Errorf("nothing to decode: pass hex arguments or --file")
	}

	packets, err := decodePackets(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, packets)
	}
	for _, p := range packets {
		fmt.Fprintf(out, "%s %s (%d bytes)\n", p.ID, p.Type, p.Size)
		fmt.Fprintf(out, "  created=%d lastEdited=%d updateDelta=%d simulatedDelta=%d\n",
			p.Created, p.LastEdited, p.UpdateDelta, p.SimulatedDelta)
		fmt.Fprintf(out, "  properties: %s\n", strings.Join(p.Properties, ", "))
	}
	return nil
}

func decodePackets(data []byte) ([]DecodedPacket, error) {
	var packets []DecodedPacket
	for len(data) > 0 {
		pkt, err := entity.ParsePacket(data)
		if err != nil {
			return packets, fmt.Errorf("packet %d: %w", len(packets), err)
		}
		var names []string
		for prop := 0; prop < entity.PropLastItem; prop++ {
			if pkt.Properties.Has(prop) {
				names = append(names, entity.PropertyName(prop))
			}
		}
		packets = append(packets, DecodedPacket{
			ID:             pkt.ID.String(),
			Type:           pkt.Type.String(),
			Created:        pkt.Created,
			LastEdited:     pkt.LastEdited,
			UpdateDelta:    pkt.UpdateDelta,
			SimulatedDelta: pkt.SimulatedDelta,
			Size:           pkt.Size,
			Properties:     names,
			Values:         pkt.Properties,
		})
		data = data[pkt.Size:]
	}
	return packets, nil
}
