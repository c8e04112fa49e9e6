// Package config reads environment configuration for the interview engine.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	// PublicHost is the externally reachable hostname Twilio calls back on.
	PublicHost string

	DatabaseURL string

	OpenAIKey     string
	RealtimeModel string
	RealtimeVoice string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	FromMail string

	BookingBaseURL string

	// QuestionScript is the YAML file seeded into the question bank on boot.
	QuestionScript string

	SchedulerInterval time.Duration

	// AmbiguousTimeCheckIsYes keeps the production default of treating an
	// unclear time-check answer as a yes.
	AmbiguousTimeCheckIsYes bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := getEnv("HTTP_ADDRESS", ":8080")

	publicHost := os.Getenv("PUBLIC_HOST")
	if publicHost == "" {
		log.Println("Warning: PUBLIC_HOST not set - Twilio webhooks and the media stream will not reach this instance")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("Warning: DATABASE_URL not set - the session store will not connect")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - realtime sessions will not work")
	}

	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	twilioFrom := os.Getenv("TWILIO_FROM_NUMBER")
	if twilioSID == "" || twilioToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN not set - outbound calls will not work")
	}
	if twilioFrom == "" {
		log.Println("Warning: TWILIO_FROM_NUMBER not set - outbound calls will not work")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - recordings will not be archived")
	}

	interval := 60 * time.Second
	if raw := os.Getenv("SCHEDULER_INTERVAL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			interval = time.Duration(secs) * time.Second
		} else {
			log.Printf("Warning: bad SCHEDULER_INTERVAL_SECONDS %q, using 60s", raw)
		}
	}

	ambiguousYes := true
	if raw := os.Getenv("AMBIGUOUS_TIME_CHECK_IS_YES"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			ambiguousYes = v
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s PUBLIC_HOST=%s", addr, publicHost)
	return Config{
		HTTPAddress:             addr,
		PublicHost:              publicHost,
		DatabaseURL:             dbURL,
		OpenAIKey:               openAIKey,
		RealtimeModel:           getEnv("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:           getEnv("OPENAI_REALTIME_VOICE", "alloy"),
		TwilioAccountSID:        twilioSID,
		TwilioAuthToken:         twilioToken,
		TwilioFromNumber:        twilioFrom,
		SupabaseURL:             supabaseURL,
		SupabaseServiceRoleKey:  supabaseKey,
		SupabaseBucket:          getEnv("SUPABASE_BUCKET", "interview-recordings"),
		SMTPHost:                os.Getenv("SMTP_HOST"),
		SMTPPort:                getEnv("SMTP_PORT", "587"),
		SMTPUser:                os.Getenv("SMTP_USER"),
		SMTPPass:                os.Getenv("SMTP_PASS"),
		FromMail:                os.Getenv("MAIL_FROM"),
		BookingBaseURL:          getEnv("BOOKING_BASE_URL", "https://pines.example.com/booking"),
		QuestionScript:          getEnv("QUESTION_SCRIPT", "questions.yaml"),
		SchedulerInterval:       interval,
		AmbiguousTimeCheckIsYes: ambiguousYes,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
