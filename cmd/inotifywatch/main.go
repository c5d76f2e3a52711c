// Command inotifywatch watches files and directories with inotify, logs the
// events it sees and periodically summarises the busiest paths.
//
// Events are read either with blocking reads on a dedicated goroutine or,
// with --async, through an epoll driven event stream. Prometheus metrics of
// the inotify layer are served on --metrics-listen when set.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hawkingrei/notify/inotify"
	"github.com/hawkingrei/notify/poller"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type cli struct {
	Paths         []string      `arg:"" name:"path" help:"Files or directories to watch"`
	Events        string        `help:"Events to watch, comma separated (e.g. create,delete,close)" default:"all" env:"INOTIFYWATCH_EVENTS"`
	Recursive     bool          `short:"r" help:"Watch directories recursively, following new subdirectories" env:"INOTIFYWATCH_RECURSIVE"`
	Async         bool          `help:"Read through the epoll driven event stream instead of blocking reads" env:"INOTIFYWATCH_ASYNC"`
	BufferSize    int           `help:"Size of the read buffer in bytes" default:"4096" env:"INOTIFYWATCH_BUFFER_SIZE"`
	Interval      time.Duration `help:"Interval between summaries" default:"1m" env:"INOTIFYWATCH_INTERVAL"`
	Top           int           `help:"Number of paths listed in a summary" default:"10" env:"INOTIFYWATCH_TOP"`
	Cold          int           `help:"Number of least recently accessed, event free files listed in a summary; walks the roots" default:"0" env:"INOTIFYWATCH_COLD"`
	Timeout       time.Duration `help:"Stop after this long, zero runs until interrupted" default:"0s" env:"INOTIFYWATCH_TIMEOUT"`
	MetricsListen string        `help:"Prometheus metrics listen address, empty disables" env:"INOTIFYWATCH_METRICS_LISTEN"`
	LogLevel      string        `help:"Log level" default:"info" enum:"trace,debug,info,warn,error" env:"INOTIFYWATCH_LOG_LEVEL"`
	LogJSON       bool          `help:"Log in JSON" env:"INOTIFYWATCH_LOG_JSON"`
}

func main() {
	var params cli
	kong.Parse(&params, kong.Description("Watch files and directories with inotify."))

	if err := run(params); err != nil {
		logrus.WithError(err).Fatal("inotifywatch failed")
	}
}

func run(params cli) error {
	level, err := logrus.ParseLevel(params.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if params.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if params.BufferSize < inotify.HeaderSize {
		params.BufferSize = inotify.HeaderSize
	}

	mask, err := inotify.ParseWatchMask(params.Events)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	if params.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: params.MetricsListen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	roots := make([]string, 0, len(params.Paths))
	for _, p := range params.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		roots = append(roots, abs)
	}

	in, err := inotify.Init()
	if err != nil {
		return err
	}
	defer in.Close()

	labels := newRelabel(roots)
	w := newWatcher(in.Watches(), mask, params.Recursive, labels)
	for _, root := range roots {
		if err := w.addRoot(root); err != nil {
			return err
		}
	}
	logrus.WithField("watches", in.Watches().Len()).Infof("Watching %v", mask)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan record, 1024)
	t := newTally(params.Interval, params.Top, params.Cold, labels)
	done := make(chan struct{})
	go func() {
		t.Start(ctx, records)
		close(done)
	}()

	if params.Async {
		err = streamEvents(ctx, in, w, params.BufferSize, records)
	} else {
		err = readEvents(ctx, in, w, params.BufferSize, records)
	}
	cancel()
	<-done
	return err
}

// readEvents reads with blocking reads on its own goroutine. A read blocked
// in the kernel does not notice cancellation, so on shutdown the goroutine
// is left behind and ends with the process.
func readEvents(ctx context.Context, in *inotify.Inotify, w *watcher, size int, records chan<- record) error {
	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, size)
		pending := 0
		for {
			evs, err := in.ReadEventsBlocking(buf, pending)
			if errors.Is(err, inotify.ErrBufferTooSmall) {
				buf = append(buf, make([]byte, len(buf))...)
				logrus.WithField("size", len(buf)).Warn("Read buffer too small, growing")
				continue
			}
			if err != nil {
				errc <- err
				return
			}
			for evs.Next() {
				rec, ok := w.handle(evs.Event())
				if !ok {
					continue
				}
				select {
				case records <- rec:
				case <-ctx.Done():
					return
				}
			}
			pending = copy(buf, evs.Tail())
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

// streamEvents reads through an EventStream, which honours ctx directly.
func streamEvents(ctx context.Context, in *inotify.Inotify, w *watcher, size int, records chan<- record) error {
	p, err := poller.New()
	if err != nil {
		return err
	}
	defer p.Close()

	s, err := in.EventStream(make([]byte, size), p)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		ev, err := s.Next(ctx)
		switch {
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case errors.Is(err, inotify.ErrBufferTooSmall):
			size *= 2
			s.Grow(size)
			logrus.WithField("size", size).Warn("Read buffer too small, growing")
			continue
		case err != nil:
			return err
		}

		rec, ok := w.handle(ev)
		if !ok {
			continue
		}
		select {
		case records <- rec:
		case <-ctx.Done():
			return nil
		}
	}
}
