package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Newrona-pi/voice-interviewer/internal/admin"
	"github.com/Newrona-pi/voice-interviewer/internal/config"
	"github.com/Newrona-pi/voice-interviewer/internal/httpserver"
	"github.com/Newrona-pi/voice-interviewer/internal/interview"
	"github.com/Newrona-pi/voice-interviewer/internal/notify"
	"github.com/Newrona-pi/voice-interviewer/internal/realtime"
	"github.com/Newrona-pi/voice-interviewer/internal/relay"
	"github.com/Newrona-pi/voice-interviewer/internal/scheduler"
	"github.com/Newrona-pi/voice-interviewer/internal/script"
	"github.com/Newrona-pi/voice-interviewer/internal/store"
	"github.com/Newrona-pi/voice-interviewer/internal/telephony"
	"github.com/Newrona-pi/voice-interviewer/internal/transcribe"
	"github.com/Newrona-pi/voice-interviewer/supabase"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	seedQuestions(ctx, st, cfg.QuestionScript)

	var storage *supabase.Storage
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		storage, err = supabase.New(supabase.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Fatalf("supabase: %v", err)
		}
	}

	notifier := notify.New(notify.Config{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		FromNumber:     cfg.TwilioFromNumber,
		SMTPHost:       cfg.SMTPHost,
		SMTPPort:       cfg.SMTPPort,
		SMTPUser:       cfg.SMTPUser,
		SMTPPass:       cfg.SMTPPass,
		FromMail:       cfg.FromMail,
		BookingBaseURL: cfg.BookingBaseURL,
	})

	transcriber := transcribe.New(transcribe.Config{
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		OpenAIKey:        cfg.OpenAIKey,
	}, st, storageOrNil(storage))

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Interval = cfg.SchedulerInterval

	telCfg := telephony.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		PublicHost: cfg.PublicHost,
	}
	rtCfg := realtime.Config{
		APIKey: cfg.OpenAIKey,
		Model:  cfg.RealtimeModel,
		Voice:  cfg.RealtimeVoice,
	}
	policy := interview.Policy{AmbiguousIsYes: cfg.AmbiguousTimeCheckIsYes}

	// The scheduler dials through telephony and telephony reconciles through
	// the scheduler, so telephony gets a late-bound reconciler.
	var sched *scheduler.Scheduler
	tel := telephony.New(telCfg, st, reconcilerFunc(func(ctx context.Context, id int64, callStatus string) error {
		return sched.Reconcile(ctx, id, callStatus)
	}), transcriber, rtCfg, relay.DefaultConfig(), policy)
	sched = scheduler.New(st, tel, notifier, schedCfg)

	go sched.Run(ctx)

	e := httpserver.New()
	tel.RegisterHandlers(e)
	admin.New(st).RegisterHandlers(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// seedQuestions loads the YAML question script into the bank. An existing
// set with the same name is left untouched.
func seedQuestions(ctx context.Context, st *store.Store, path string) {
	if path == "" {
		return
	}
	scr, err := script.Load(path)
	if err != nil {
		log.Printf("question script %s: %v", path, err)
		return
	}
	id, err := st.SeedQuestionSet(ctx, scr.Name, scr.ModelQuestions())
	if err != nil {
		log.Printf("seed question set: %v", err)
		return
	}
	log.Printf("question set %q ready (id %d)", scr.Name, id)
}

// reconcilerFunc adapts a closure to the telephony.Reconciler interface.
type reconcilerFunc func(ctx context.Context, interviewID int64, callStatus string) error

func (f reconcilerFunc) Reconcile(ctx context.Context, interviewID int64, callStatus string) error {
	return f(ctx, interviewID, callStatus)
}

func storageOrNil(s *supabase.Storage) transcribe.Storage {
	if s == nil {
		return nil
	}
	return s
}
