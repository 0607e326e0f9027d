// Command statuswatch follows the active booking of one subject from the
// terminal, printing every status change until the booking closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/client"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/config"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/deadline"
	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "statuswatch:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")
	defaults := config.Default()

	var (
		baseURL      string
		token        string
		subjectId    string
		timezone     string
		graceMinutes int
		rejectedFor  time.Duration
		pollInterval time.Duration
		verbose      bool
	)

	flagSet := pflag.NewFlagSet("statuswatch", pflag.ContinueOnError)
	flagSet.StringVar(&baseURL, "url", "http://localhost:8000", "booking status service base URL")
	flagSet.StringVar(&token, "token", os.Getenv("BOOKING_TOKEN"), "identity token (default $BOOKING_TOKEN)")
	flagSet.StringVar(&subjectId, "subject", "", "subject whose bookings are followed")
	flagSet.StringVar(&timezone, "timezone", defaults.Booking.Timezone, "time zone of booking dates")
	flagSet.IntVar(&graceMinutes, "grace", defaults.Booking.GraceMinutes, "minutes an approved booking stays open after its service ends")
	flagSet.DurationVar(&rejectedFor, "rejected-window", defaults.RejectedDisplayWindow(), "how long a rejected booking is shown")
	flagSet.DurationVar(&pollInterval, "poll", client.DefaultPollInterval, "fallback poll interval (15s-20s)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if token == "" {
		return errors.New("an identity token is required (--token or BOOKING_TOKEN)")
	}
	if subjectId == "" {
		return errors.New("--subject is required")
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer, err := client.NewWSDialer(baseURL, token, logger)
	if err != nil {
		return err
	}
	pool := client.NewPool(dialer, logger, client.DefaultCapacity, client.ManagerOptions{
		Calculator: deadline.NewCalculator(loc, graceMinutes),
	})
	defer pool.Close()

	observer := newPrinter(os.Stdout, loc)
	engine := client.NewEngine(logger, client.NewRESTFetcher(baseURL, token, subjectId), pool, observer, subjectId, client.EngineOptions{
		PollInterval:   pollInterval,
		RejectedWindow: rejectedFor,
	})
	defer engine.Stop()

	if err := engine.Start(ctx); err != nil {
		return err
	}
	if !engine.Visible() {
		if !observer.shown() {
			fmt.Fprintln(os.Stdout, "no active booking")
		}
		return nil
	}

	select {
	case <-observer.hidden:
	case <-ctx.Done():
	}
	return nil
}

// printer writes the status surface to a terminal.
type printer struct {
	out io.Writer
	loc *time.Location

	mu       sync.Mutex
	wasShown bool
	hidden   chan struct{}
	once     sync.Once
}

func newPrinter(out io.Writer, loc *time.Location) *printer {
	return &printer{out: out, loc: loc, hidden: make(chan struct{})}
}

func (p *printer) shown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wasShown
}

func (p *printer) Show(b types.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wasShown = true
	fmt.Fprintf(p.out, "%s  %s on %s at %s: %s\n", b.Id, b.ServiceName, b.Date, b.Time, b.Status)
	if b.Status == types.StatusRejected && b.RejectionReason != "" {
		fmt.Fprintf(p.out, "    reason: %s\n", b.RejectionReason)
	}
}

func (p *printer) StatusChanged(ev types.StatusUpdateEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s  %s -> %s\n", ev.EmittedAt.In(p.loc).Format(time.Kitchen), ev.BookingId, ev.Status)
	if ev.RejectionReason != "" {
		fmt.Fprintf(p.out, "    reason: %s\n", ev.RejectionReason)
	}
}

func (p *printer) Hide(bookingId string, reason client.CloseReason) {
	p.mu.Lock()
	switch reason {
	case client.ReasonRejected:
		fmt.Fprintf(p.out, "%s  closed: rejected, a new booking can be submitted\n", bookingId)
	default:
		fmt.Fprintf(p.out, "%s  closed: %s\n", bookingId, reason)
	}
	p.mu.Unlock()

	p.once.Do(func() { close(p.hidden) })
}
