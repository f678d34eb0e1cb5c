// Command ledgeragent runs the on-device stall voice ledger: it listens
// continuously, extracts structured sale transactions from overheard
// seller/customer conversation, and keeps them durably queued for sync.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/audio/capture"
	"github.com/ghanavoice/ledger/pkg/offlinequeue"
	"github.com/ghanavoice/ledger/pkg/pipeline"
	"github.com/ghanavoice/ledger/pkg/recognizer"
	"github.com/ghanavoice/ledger/pkg/speaker"
	"github.com/ghanavoice/ledger/pkg/store"
	"github.com/ghanavoice/ledger/pkg/summary"
	syncpkg "github.com/ghanavoice/ledger/pkg/sync"
	"github.com/ghanavoice/ledger/pkg/transaction"
	"github.com/ghanavoice/ledger/pkg/vad"
	"github.com/ghanavoice/ledger/pkg/vocabulary"
)

func main() {
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("ledgeragent: config: %v", err)
	}

	logger := logging.New(nil)

	realClock := clock.Real{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.Path, logging.NewWithComponent(nil, "store"))
	if err != nil {
		logger.Error("ledgeragent: open store failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	queue := offlinequeue.New(st, cfg.Queue, realClock, logging.NewWithComponent(nil, "offlinequeue"))

	vocab, err := loadVocabulary(ctx, st)
	if err != nil {
		logger.Error("ledgeragent: load vocabulary failed", "err", err)
		os.Exit(1)
	}
	sm := transaction.New(transaction.Config{
		AutoSaveThreshold: cfg.Transaction.AutoSaveThreshold,
		ReviewThreshold:   cfg.Transaction.ReviewThreshold,
		InactivityTimeout: cfg.Transaction.InactivityTimeout,
		PaymentHold:       cfg.Transaction.PaymentHold,
	}, vocab)

	registry, err := loadSpeakerRegistry(ctx, st, cfg, realClock)
	if err != nil {
		logger.Error("ledgeragent: load speaker registry failed", "err", err)
		os.Exit(1)
	}

	recog := buildRecognizer(cfg, realClock, logging.NewWithComponent(nil, "recognizer"))

	policy, err := buildVADPolicy(cfg)
	if err != nil {
		logger.Error("ledgeragent: build vad policy failed", "err", err)
		os.Exit(1)
	}
	detector := vad.NewDetector(policy, realClock, cfg.VAD.SmoothingWindow, cfg.VAD.TailSilenceFrames)
	sleep := vad.NewSleepController(realClock, cfg.VAD.LightSleepAfter, cfg.VAD.DeepSleepAfter)

	mic := capture.NewMicrophone(cfg.Audio.SampleRate, cfg.Audio.FrameMillis,
		capture.WithLogger(logging.NewWithComponent(nil, "capture")),
		capture.WithPoolSize(cfg.Audio.BufferPool),
	)

	var embedder speaker.Embedder = speaker.FakeEmbedder{}

	pl := pipeline.New(mic, detector, sleep, embedder, registry, recog, sm, st, realClock, logging.NewWithComponent(nil, "pipeline"), pipeline.Options{
		Language: recognizer.LanguageEn,
	})

	client := syncpkg.NewClient(cfg.Sync)
	reconciler := syncpkg.NewReconciler(client, st, realClock, logging.NewWithComponent(nil, "sync"))
	worker := offlinequeue.NewWorker(st, reconciler, cfg.Queue, realClock, logging.NewWithComponent(nil, "worker"))

	summarySvc := summary.NewService(st, queue, realClock, logging.NewWithComponent(nil, "summary"), cfg.Features)
	scheduler := summary.NewScheduler(summarySvc, logging.NewWithComponent(nil, "scheduler"))
	if err := scheduler.Start(ctx, cfg.Summary.Schedule); err != nil {
		logger.Error("ledgeragent: start summary scheduler failed", "err", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	go queue.RunReaper(ctx, cfg.Queue.CompletedGrace)
	go queue.RunGC(ctx, cfg.Queue.GCInterval)
	go worker.Run(ctx, cfg.Sync.PollInterval, func() offlinequeue.NetworkStatus {
		return currentNetworkStatus(cfg)
	})
	go runAudioMetadataPurge(ctx, st, cfg.Store.AudioMetadataTTL, realClock, logging.NewWithComponent(nil, "store"))
	go runTransactionPull(ctx, reconciler, cfg.Sync.PollInterval, realClock, logging.NewWithComponent(nil, "sync"))

	go func() {
		if err := pl.Run(ctx, 1*time.Second); err != nil {
			logger.Error("ledgeragent: pipeline stopped", "err", err)
		}
	}()

	logger.Info("ledgeragent: listening", "sample_rate", cfg.Audio.SampleRate, "vad_policy", cfg.VAD.Policy)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("ledgeragent: shutting down")
	cancel()
}

// currentNetworkStatus is a placeholder network probe until the device's
// connectivity manager is wired in; it reports an always-available,
// unmetered, good-quality link so the worker drains under NORMAL_SYNC by
// default.
func currentNetworkStatus(cfg config.Config) offlinequeue.NetworkStatus {
	return offlinequeue.NetworkStatus{
		Available: true,
		Metered:   false,
		Quality:   offlinequeue.QualityGood,
	}
}

// loadVocabulary seeds the in-memory normalizer from the persisted
// product_vocabulary table. On a fresh store with no rows yet, it seeds both
// the table and the normalizer from defaultProducts so the very first run
// has a usable vocabulary; every later run loads from the store. Only names
// and variants reach the normalizer; stored frequency counts are not loaded.
func loadVocabulary(ctx context.Context, st *store.Store) (*vocabulary.Vocabulary, error) {
	entries, err := st.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		for _, p := range defaultProducts() {
			if err := st.UpsertProduct(ctx, store.VocabularyEntry{CanonicalName: p.Name, Variants: p.Aliases}); err != nil {
				return nil, err
			}
		}
		entries, err = st.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
	}

	vocab := vocabulary.New(0.8)
	for _, e := range entries {
		vocab.Add(vocabulary.Product{Name: e.CanonicalName, Aliases: e.Variants})
	}
	return vocab, nil
}

// defaultProducts seeds the vocabulary with the stall products a typical
// Ghanaian market vendor sells; a real deployment loads this list from the
// device's per-stall configuration instead.
func defaultProducts() []vocabulary.Product {
	return []vocabulary.Product{
		{Name: "Tilapia", Aliases: []string{"tilapia fish"}},
		{Name: "Plantain", Aliases: []string{"kwadu"}},
		{Name: "Tomato", Aliases: []string{"tomatoes"}},
		{Name: "Cassava", Aliases: []string{"bankye"}},
		{Name: "Rice", Aliases: []string{"emo"}},
		{Name: "Onion", Aliases: []string{"onions"}},
		{Name: "Pepper", Aliases: []string{"shito", "peppers"}},
		{Name: "Yam", Aliases: []string{"bayere"}},
	}
}

// runAudioMetadataPurge sweeps audio_metadata rows older than ttl once a day
// until ctx is cancelled.
func runAudioMetadataPurge(ctx context.Context, st *store.Store, ttl time.Duration, c clock.Clock, log logging.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeOlderThan(ctx, c.Now().Add(-ttl))
			if err != nil {
				log.Error("ledgeragent: audio metadata purge failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("ledgeragent: purged audio metadata", "rows", n)
			}
		}
	}
}

// runTransactionPull polls the remote for transactions updated since the
// last successful pull, applying each through the reconciler's conflict
// policy.
func runTransactionPull(ctx context.Context, reconciler *syncpkg.Reconciler, interval time.Duration, c clock.Clock, log logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	since := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := c.Now()
			n, err := reconciler.PullTransactions(ctx, since)
			if err != nil {
				log.Error("ledgeragent: pull transactions failed", "err", err)
				continue
			}
			since = start
			if n > 0 {
				log.Info("ledgeragent: pulled transactions", "count", n)
			}
		}
	}
}

func loadSpeakerRegistry(ctx context.Context, st *store.Store, cfg config.Config, c clock.Clock) (*speaker.Registry, error) {
	registry := speaker.NewRegistry(speaker.Thresholds{
		Seller:                  cfg.Speaker.SellerThreshold,
		Customer:                cfg.Speaker.CustomerThreshold,
		EnrollmentMinSimilarity: cfg.Speaker.EnrollmentMinSimilarity,
		RollingUpdateWeight:     cfg.Speaker.RollingUpdateWeight,
	}, c)

	records, err := st.ListSpeakerProfiles(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]*speaker.Profile, 0, len(records))
	for i := range records {
		profiles = append(profiles, &records[i].Profile)
	}
	registry.Load(profiles)
	return registry, nil
}

func buildVADPolicy(cfg config.Config) (vad.FramePolicy, error) {
	if cfg.VAD.Policy == "webrtc" {
		return vad.NewWebRTCPolicy(vad.ParseWebRTCMode(cfg.VAD.WebRTCMode))
	}
	return vad.NewEnergyZCPolicy(cfg.VAD.EnergyThreshold), nil
}

// buildRecognizer builds the offline backend when an offline server URL is
// configured, and the online backend from the first API key found among
// GROQ_API_KEY, OPENAI_API_KEY, DEEPGRAM_API_KEY and ASSEMBLYAI_API_KEY.
// recognizer.New orders the two by cfg.Recognizer.PreferOffline, which
// defaults to false (online first).
func buildRecognizer(cfg config.Config, c clock.Clock, log logging.Logger) *recognizer.Orchestrator {
	var offline recognizer.Backend
	if cfg.Recognizer.OfflineServerURL != "" {
		offline = recognizer.NewOfflineBackend(cfg.Recognizer.OfflineServerURL, "", cfg.Recognizer.OnlineCallTimeout)
	}

	var online recognizer.Backend
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		online = recognizer.NewGroqBackend(key, "", cfg.Recognizer.OnlineCallTimeout)
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		online = recognizer.NewOpenAIBackend(key, "whisper-1", cfg.Recognizer.OnlineCallTimeout)
	} else if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		online = recognizer.NewDeepgramBackend(key, cfg.Recognizer.OnlineCallTimeout)
	} else if key := os.Getenv("ASSEMBLYAI_API_KEY"); key != "" {
		online = recognizer.NewAssemblyAIBackend(key, cfg.Recognizer.OnlineCallTimeout)
	}

	return recognizer.New(recognizer.Config{
		PreferOffline:       cfg.Recognizer.PreferOffline,
		MaxRetries:          cfg.Recognizer.MaxRetries,
		BackoffBase:         cfg.Recognizer.BackoffBase,
		BackoffCap:          cfg.Recognizer.BackoffCap,
		CircuitMaxFailures:  cfg.Recognizer.CircuitMaxFailures,
		CircuitResetTimeout: cfg.Recognizer.CircuitResetTimeout,
	}, offline, online, c, log)
}
