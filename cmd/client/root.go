package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	cfg          = client.DefaultConfig()
	flagRoom     string
	flagSTUN     []string
	flagLogLevel string
	flagStay     time.Duration

	rx meter
)

// meter counts received media packets. There is no local output device.
type meter struct {
	audio atomic.Int64
	video atomic.Int64
}

func (m *meter) Play(_ domain.UserID, kind webrtc.RTPCodecType, _ []byte) {
	if kind == webrtc.RTPCodecTypeAudio {
		m.audio.Add(1)
	} else {
		m.video.Add(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "huddle-client",
	Short: "Headless participant for a Huddle room",
	Long: `huddle-client joins a room through the signaling server, negotiates a peer
connection with every other participant and prints room events.

Lines typed on stdin are sent as chat messages. Commands:
  /mute  /video  /deafen  /chat  /who
  /kick <id>  /forcemute <id>  /novideo <id>  /delete
  /retry  /leave

Examples:
  huddle-client --room lobby --name Ann
  huddle-client --server wss://example.org/api/ws/signal --token $JWT --room r1 --no-video`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return errors.New("--room is required")
		}
		if lvl, err := zerolog.ParseLevel(flagLogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
		cfg.RoomID = domain.RoomID(flagRoom)
		return run(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfg.ServerURL, "server", "s", cfg.ServerURL, "signaling websocket URL")
	f.StringVarP(&flagRoom, "room", "r", "", "room id to join")
	f.StringVarP(&cfg.DisplayName, "name", "n", cfg.DisplayName, "display name")
	f.StringVar(&cfg.AvatarURL, "avatar", "", "avatar image URL")
	f.StringVar(&cfg.Token, "token", "", "bearer token when the server runs in jwt mode")
	f.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "dial and join timeout")
	f.IntVar(&cfg.ReconnectAttempts, "reconnect-attempts", cfg.ReconnectAttempts, "reconnect attempts after a drop")
	f.DurationVar(&cfg.ReconnectBackoff, "reconnect-backoff", cfg.ReconnectBackoff, "pause between reconnect attempts")
	f.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "keep-alive interval")
	f.DurationVar(&cfg.LivenessTimeout, "liveness-timeout", cfg.LivenessTimeout, "silence after which the connection counts as lost")
	f.DurationVar(&cfg.RecreateDelay, "recreate-delay", cfg.RecreateDelay, "pause before recreating a failed peer link")
	f.BoolVar(&cfg.DisableVideo, "no-video", false, "do not send video")
	f.BoolVar(&cfg.DisableAudio, "no-audio", false, "do not send audio")
	f.StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs")
	f.StringVar(&flagLogLevel, "log-level", "info", "log level")
	f.DurationVar(&flagStay, "stay", 0, "leave after this long (0 stays until interrupted)")
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("huddle-client")
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg client.Config) error {
	tr, err := client.NewWSTransport(cfg)
	if err != nil {
		return err
	}
	factory := rtc.NewFactory(rtc.DefaultWebRTCConfig(flagSTUN...))
	s := client.New(cfg, client.Deps{
		Transport: tr,
		Media:     rtc.SyntheticSource{DenyAudio: cfg.DisableAudio, DenyVideo: cfg.DisableVideo},
		Links:     factory.New,
		Playback:  &rx,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if flagStay > 0 {
		time.AfterFunc(flagStay, func() { _ = s.Leave() })
	}
	go watch(ctx, s)
	go readCommands(ctx, os.Stdin, s)

	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch logs phase and roster changes and prints chat lines not seen yet.
func watch(ctx context.Context, s *client.Session) {
	var last client.View
	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case v := <-s.Updates():
			if v.Phase != last.Phase {
				ev := log.Info().Str("module", "client").Str("phase", v.Phase.String())
				if v.Reason != "" {
					ev = ev.Str("reason", v.Reason)
				}
				ev.Msg("session")
				if v.Phase == client.PhaseFailed {
					log.Error().Err(v.LastError).Msg("connection failed, type /retry or press Ctrl-C")
				}
			}
			if len(v.Participants) != len(last.Participants) {
				log.Info().Str("module", "client").Int("others", len(v.Participants)).Msg("participants")
			}
			for _, m := range v.Chat {
				if seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.SenderName, m.Content)
			}
			last = v
		}
	}
}

func readCommands(ctx context.Context, in io.Reader, s *client.Session) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := command(s, strings.TrimSpace(sc.Text())); err != nil {
			log.Warn().Err(err).Msg("command failed")
		}
	}
}

func command(s *client.Session, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.SendMessage(line)
	}
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "/mute":
		return s.ToggleMute()
	case "/video":
		return s.ToggleVideo()
	case "/deafen":
		return s.ToggleDeafen()
	case "/chat":
		return s.ToggleChat()
	case "/who":
		v := s.Snapshot()
		for id, p := range v.Participants {
			fmt.Printf("%s %s muted=%t videoOff=%t link=%s\n", id, p.Name, p.IsMuted, p.IsVideoOff, v.Links[id])
		}
		fmt.Printf("received packets: audio=%d video=%d deafened=%t\n", rx.audio.Load(), rx.video.Load(), v.IsDeafened)
		return nil
	case "/kick":
		return s.AdminKick(domain.UserID(arg))
	case "/forcemute":
		return s.AdminMute(domain.UserID(arg))
	case "/novideo":
		return s.AdminDisableVideo(domain.UserID(arg))
	case "/delete":
		return s.DeleteRoom()
	case "/retry":
		return s.Retry()
	case "/leave":
		return s.Leave()
	}
	return fmt.Errorf("unknown command %q", fields[0])
}
