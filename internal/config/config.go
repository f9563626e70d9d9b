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

	// Interview backend (evaluation, timer, option lists).
	BackendBaseURL string
	BackendTimeout time.Duration

	// Speech synthesis.
	DeepgramAPIKey string
	DeepgramModel  string
	BackendVoiceID string
	LocalVoice     string
	EnableTTS      bool

	// Optional recording archive.
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	backendURL := os.Getenv("INTERVIEW_BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8000"
		log.Println("Warning: INTERVIEW_BACKEND_URL not set - using http://localhost:8000")
	}

	timeout := 15 * time.Second
	if raw := os.Getenv("INTERVIEW_BACKEND_TIMEOUT_SECONDS"); raw != "" {
		if secs, perr := strconv.Atoi(raw); perr == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - premium voice disabled, backend voice will be used")
	}

	voiceID := os.Getenv("BACKEND_VOICE_ID")
	localVoice := os.Getenv("LOCAL_VOICE")
	if localVoice == "" {
		localVoice = "en-us"
	}

	enableTTS := true
	if raw := os.Getenv("ENABLE_TTS"); raw != "" {
		if v, perr := strconv.ParseBool(raw); perr == nil {
			enableTTS = v
		}
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "interview-recordings"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - recordings will not be archived")
	}

	log.Printf("config: HTTP_ADDRESS=%s backend=%s", addr, backendURL)
	return Config{
		HTTPAddress:    addr,
		BackendBaseURL: backendURL,
		BackendTimeout: timeout,
		DeepgramAPIKey: deepgramKey,
		DeepgramModel:  deepgramModel,
		BackendVoiceID: voiceID,
		LocalVoice:     localVoice,
		EnableTTS:      enableTTS,
		SupabaseURL:    supabaseURL,
		SupabaseKey:    supabaseKey,
		SupabaseBucket: supabaseBucket,
	}
}
