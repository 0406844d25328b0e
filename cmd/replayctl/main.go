// Command replayctl is an operator CLI around a recording directory: inspect
// its header, replay it to stdout, or expose it over the HTTP control
// surface. It treats payloads as opaque JSON objects (map[string]interface{})
// since the CLI has no compile-time knowledge of an embedding application's
// payload type.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/annel0/replaycore/internal/replay/api"
	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/replayer"
	"github.com/annel0/replaycore/internal/replay/tick"
)

type jsonPayload = map[string]interface{}

func main() {
	root := &cobra.Command{
		Use:   "replayctl",
		Short: "Inspect and replay tick-indexed recording directories",
	}

	root.AddCommand(inspectCmd(), playCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Print header.json metadata for a recording directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := header.NewStore(args[0]).ReadMeta()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
}

func playCmd() *cobra.Command {
	var speed float64
	var seekTick int64

	cmd := &cobra.Command{
		Use:   "play <dir>",
		Short: "Play a recording to completion, printing one JSON line per tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			done := make(chan struct{})
			r, err := replayer.New[jsonPayload](dir, codec.NewJSONCodec[jsonPayload](), replayer.Options[jsonPayload]{
				Speed: speed,
				OnTick: func(data jsonPayload, meta tick.Meta) {
					line, _ := json.Marshal(struct {
						Tick int64       `json:"tick"`
						Data jsonPayload `json:"data"`
					}{meta.Tick, data})
					fmt.Println(string(line))
				},
				OnEnd: func() { close(done) },
			})
			if err != nil {
				return err
			}
			if err := r.Init(); err != nil {
				return err
			}
			if seekTick > 0 {
				if err := r.Seek(seekTick); err != nil {
					return err
				}
			}
			if err := r.Play(); err != nil {
				return err
			}
			<-done
			return nil
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed multiplier")
	cmd.Flags().Int64Var(&seekTick, "from-tick", 0, "seek to this tick before playing")
	return cmd
}

func serveCmd() *cobra.Command {
	var port string
	var jwtSecret string

	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Expose a recording directory over the HTTP control surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			r, err := replayer.New[jsonPayload](dir, codec.NewJSONCodec[jsonPayload](), replayer.Options[jsonPayload]{})
			if err != nil {
				return err
			}
			if err := r.Init(); err != nil {
				return err
			}

			srv := api.New[jsonPayload](api.Config[jsonPayload]{
				Port:      port,
				JWTSecret: []byte(jwtSecret),
				Replayer:  r,
			})
			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&port, "port", ":8090", "HTTP listen address")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret for bearer tokens (empty disables auth)")
	return cmd
}
