package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/polaris-wellness/polaris/backend/internal/config"
	"github.com/polaris-wellness/polaris/backend/internal/handler"
	"github.com/polaris-wellness/polaris/backend/internal/service/conversation"
	journalservice "github.com/polaris-wellness/polaris/backend/internal/service/journal"
	"github.com/polaris-wellness/polaris/backend/internal/service/reasoning"
	"github.com/polaris-wellness/polaris/backend/internal/service/speech"
	"github.com/polaris-wellness/polaris/backend/internal/service/toxicity"
	"github.com/polaris-wellness/polaris/backend/internal/service/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	conversations, journals := buildStores(ctx, cfg.Store)

	var reasoner *reasoning.Client
	if cfg.AI.Enabled() {
		reasoner = reasoning.NewClient(cfg.AI)
		logrus.Info("reasoning client initialized")
	} else {
		logrus.Info("GEMINI_API_KEY not set, replies fall back to the apology text")
	}

	turnDeps := turn.Deps{
		Store:          conversations,
		Decoder:        speech.NewFFmpegDecoder(cfg.Speech.SampleRate),
		HistoryLimit:   cfg.History.Limit,
		ExtractTimeout: cfg.Emotion.Timeout,
	}
	if reasoner != nil {
		turnDeps.Reasoner = reasoner
	}
	if cfg.Speech.Enabled {
		turnDeps.Transcriber = speech.NewSTTClient(cfg.Speech)
		turnDeps.Synthesizer = speech.NewTTSClient(cfg.Speech)
		logrus.Info("speech services initialized")
	} else {
		logrus.Info("speech credentials not configured, turns run without transcription")
	}
	if cfg.Emotion.AudioURL != "" {
		turnDeps.AudioScorer = speech.NewEmotionScorer(cfg.Emotion.AudioURL, cfg.Emotion.Timeout)
	}
	if cfg.Emotion.VideoURL != "" {
		turnDeps.VideoScorer = speech.NewEmotionScorer(cfg.Emotion.VideoURL, cfg.Emotion.Timeout)
	}

	var gate journalservice.ToxicityGate
	if cfg.Toxicity.APIKey != "" {
		gate = toxicity.NewChecker(cfg.Toxicity)
	} else {
		logrus.Info("PERSPECTIVE_API_KEY not set, public journals are saved unchecked")
	}

	var suggester journalservice.Suggester
	if reasoner != nil {
		suggester = reasoner
	}
	journalSvc := journalservice.NewService(journals, conversations, gate, suggester)

	router := handler.NewRouter(turnDeps, journalSvc)

	startServer(ctx, cfg.Server, router)
}

// buildStores returns Firestore-backed stores when a project is
// configured, in-memory stores otherwise.
func buildStores(ctx context.Context, cfg config.StoreConfig) (conversation.Store, journalservice.Store) {
	if !cfg.UseFirestore() {
		logrus.Info("FIRESTORE_PROJECT_ID not set, using in-memory stores")
		return conversation.NewMemoryStore(), journalservice.NewMemoryStore()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		logrus.Fatalf("failed to create firestore client: %v", err)
	}

	logrus.Infof("firestore stores initialized for project %s", cfg.ProjectID)
	return conversation.NewFirestoreStore(client), journalservice.NewFirestoreStore(client)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.Infof("polaris backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		logrus.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
