// Command syncd is the daemon entrypoint: it wires the Token Store,
// every provider adapter, the Ingestion Pipeline, the Classifier, the
// Action Executor, and the Sync Manager together, then exposes a
// narrow read-only status surface over gin the way the teacher's
// cmd/api.Handler.Start does for its own HTTP surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	actionusecase "github.com/syncorch/syncd/internal/action/usecase"
	classifierdomain "github.com/syncorch/syncd/internal/classifier/domain"
	classifierusecase "github.com/syncorch/syncd/internal/classifier/usecase"
	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	"github.com/syncorch/syncd/internal/content/repository"
	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	ingestionusecase "github.com/syncorch/syncd/internal/ingestion/usecase"
	notifdomain "github.com/syncorch/syncd/internal/notification/domain"
	notifrepo "github.com/syncorch/syncd/internal/notification/repository"
	notifusecase "github.com/syncorch/syncd/internal/notification/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/internal/provider/googlecalendar"
	"github.com/syncorch/syncd/internal/provider/googledrive"
	"github.com/syncorch/syncd/internal/provider/googleemail"
	"github.com/syncorch/syncd/internal/provider/localfs"
	"github.com/syncorch/syncd/internal/provider/microsoftemail"
	"github.com/syncorch/syncd/internal/provider/onedrive"
	"github.com/syncorch/syncd/internal/provider/outlookcalendar"
	regusecase "github.com/syncorch/syncd/internal/registry/usecase"
	syncscheduler "github.com/syncorch/syncd/internal/syncmanager/scheduler"
	syncusecase "github.com/syncorch/syncd/internal/syncmanager/usecase"
	toolserverusecase "github.com/syncorch/syncd/internal/toolserver/usecase"
	"github.com/syncorch/syncd/pkg/config"
	"github.com/syncorch/syncd/pkg/database"
	"github.com/syncorch/syncd/pkg/fcm"
	"github.com/syncorch/syncd/pkg/retry"
	"github.com/syncorch/syncd/pkg/vectorstore"

	"github.com/gin-gonic/gin"
)

const defaultAttachmentCap = 10 * 1024 * 1024

func main() {
	cfg := config.Load()

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	if err := db.AutoMigrate(
		&contentdomain.Email{}, &contentdomain.SyncStatus{},
		&contentdomain.ProviderChange{}, &contentdomain.UserPreferences{},
		&notifdomain.DeviceToken{},
	); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	emailRepo := repository.NewEmailRepository(db)
	syncRepo := repository.NewSyncStatusRepository(db)
	changesRepo := repository.NewProviderChangesRepository(db)
	prefsRepo := repository.NewUserPreferencesRepository(db)
	deviceTokenRepo := notifrepo.NewDeviceTokenRepository(db)

	var fcmClient *fcm.Client
	if cfg.FirebaseCredentialsFile != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Printf("firebase disabled: %v", err)
		}
	}
	notifier := notifusecase.New(deviceTokenRepo, fcmClient)

	vectorStore, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatalf("connect to vector store: %v", err)
	}

	// No adapter-specific OAuth refreshers are wired yet: Check reports
	// a credential invalid once it expires rather than transparently
	// refreshing it. See DESIGN.md for the open follow-up.
	credStore := credusecase.NewStore(cfg.DataRoot, map[creddomain.Provider]credusecase.Refresher{})
	retryPolicy := retry.Default()

	pipeline := ingestionusecase.New(emailRepo, syncRepo, vectorStore, os.TempDir())
	manager := syncusecase.New(cfg, credStore, pipeline, syncRepo, changesRepo)

	manager.RegisterEmailAdapter(provdomain.TagGoogleEmail, creddomain.ProviderGoogle, func(userID string) provdomain.EmailAdapter {
		return googleemail.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy, defaultAttachmentCap)
	})
	manager.RegisterEmailAdapter(provdomain.TagMicrosoftEmail, creddomain.ProviderMicrosoft, func(userID string) provdomain.EmailAdapter {
		return microsoftemail.New(userID, credStore, retryPolicy)
	})
	manager.RegisterLocalAdapter(provdomain.TagLocalFS, func(userID string) provdomain.EmailAdapter {
		return localfs.New(userID, os.Getenv("LOCAL_MBOX_PATH"), cfg.SenderAvoidList)
	})
	manager.RegisterDriveAdapter(provdomain.TagGoogleDrive, creddomain.ProviderGoogle, func(userID string) provdomain.DriveAdapter {
		return googledrive.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy)
	})
	manager.RegisterDriveAdapter(provdomain.TagOneDrive, creddomain.ProviderMicrosoft, func(userID string) provdomain.DriveAdapter {
		return onedrive.New(userID, credStore, retryPolicy)
	})

	gateway := classifierusecase.NewGeminiGateway(cfg.GeminiAPIKey, cfg.ClassifierModel)
	classifier := classifierusecase.New(gateway, cfg.ClassifierTemperature, cfg.ClassifierTimeout)
	executor := actionusecase.New(changesRepo)

	toolServer := toolserverusecase.New(cfg, vectorStore, credStore)
	toolServer.RegisterEmailAdapter(provdomain.TagGoogleEmail, func(userID string) provdomain.EmailAdapter {
		return googleemail.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy, defaultAttachmentCap)
	})
	toolServer.RegisterEmailAdapter(provdomain.TagMicrosoftEmail, func(userID string) provdomain.EmailAdapter {
		return microsoftemail.New(userID, credStore, retryPolicy)
	})
	toolServer.RegisterDriveAdapter(provdomain.TagGoogleDrive, func(userID string) provdomain.DriveAdapter {
		return googledrive.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy)
	})
	toolServer.RegisterDriveAdapter(provdomain.TagOneDrive, func(userID string) provdomain.DriveAdapter {
		return onedrive.New(userID, credStore, retryPolicy)
	})
	toolServer.RegisterCalendarAdapter(provdomain.TagGoogleCalendar, func(userID string) provdomain.CalendarAdapter {
		return googlecalendar.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy)
	})
	toolServer.RegisterCalendarAdapter(provdomain.TagOutlookCalendar, func(userID string) provdomain.CalendarAdapter {
		return outlookcalendar.New(userID, credStore, retryPolicy)
	})

	manager.PostEmailSync = func(ctx context.Context, userID string, tag provdomain.Tag) {
		if !cfg.EmailProcessing.AutoActions {
			return
		}
		runClassifierPass(ctx, cfg, userID, tag, emailRepo, prefsRepo, classifier, executor, manager, notifier)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if localMBOXPath := os.Getenv("LOCAL_MBOX_PATH"); localMBOXPath != "" {
		localUserID := os.Getenv("LOCAL_MBOX_USER_ID")
		if err := manager.PullOne(ctx, localUserID, provdomain.TagLocalFS); err != nil {
			log.Printf("local mbox pull failed: %v", err)
		}
	}

	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		watcher, err := syncusecase.NewWatcher(ctx, cfg.GoogleProjectID, cfg.GooglePubSubTopic, manager)
		if err != nil {
			log.Printf("gmail watch disabled: %v", err)
		} else {
			go watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	scheduler := syncscheduler.New(manager, cfg.TickInterval)
	scheduler.Start(ctx)

	router := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/sync-status/:user/:provider", func(c *gin.Context) {
		status, err := syncRepo.Get(c.Param("user"), c.Param("provider"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	})
	router.GET("/emails/:user/search", func(c *gin.Context) {
		results, err := emailRepo.SearchByQuery(c.Param("user"), c.Query("q"), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"emails": results})
	})
	router.POST("/retrieve/:user", func(c *gin.Context) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		chunks, err := toolServer.RetrieveDocuments(c.Request.Context(), c.Param("user"), body.Prompt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"chunks": chunks})
	})

	srv := make(chan error, 1)
	go func() { srv <- router.Run(":" + port()) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-srv:
		log.Fatalf("http server stopped: %v", err)
	case <-stop:
		log.Println("shutting down")
		scheduler.Stop()
		cancel()
	}
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

// runClassifierPass sweeps userID's unclassified emails (bounded by
// sync.email_processing.limit_per_sync) for the source that was just
// synced, classifies each against its conversation history and the
// user's rules, persists the result, and, when
// sync.email_processing.auto_actions is set, dispatches the Action
// Executor for each classification (Execute makes no provider call for
// no_action).
func runClassifierPass(ctx context.Context, cfg *config.Config, userID string, tag provdomain.Tag, emailRepo *repository.EmailRepository, prefsRepo *repository.UserPreferencesRepository, classifier *classifierusecase.Classifier, executor *actionusecase.Executor, manager *syncusecase.Manager, notifier *notifusecase.Notifier) {
	limit := classifierusecase.BudgetFromLimit(cfg.EmailProcessing.LimitPerSync)
	emails, err := emailRepo.ListUnclassified(userID, limit)
	if err != nil {
		log.Printf("classifier pass: list unclassified for %s: %v", userID, err)
		return
	}
	if len(emails) == 0 {
		return
	}

	registry, err := regusecase.Load(cfg.DataRoot, userID)
	if err != nil {
		log.Printf("classifier pass: load registry for %s: %v", userID, err)
		return
	}

	var rawRules []string
	if rules, err := prefsRepo.GetRules(userID); err == nil {
		rawRules = rules
	}
	var rules []classifierdomain.Rule
	for _, raw := range rawRules {
		if rule, ok := classifierusecase.ParseRule(raw); ok {
			rules = append(rules, rule)
		}
	}

	draftCount := 0
	for _, email := range emails {
		history := conversationHistory(emailRepo, userID, email)
		subject := ""
		if email.Subject != nil {
			subject = *email.Subject
		}
		input := classifierdomain.EmailInput{
			From: email.Sender, To: joinRecipients(email.Recipients), Subject: subject,
			Date: email.SentDate.String(), Content: email.BodyText,
		}

		classification, ok := classifier.Classify(ctx, input, history, rules)
		if !ok {
			// LLM failure: leave is_classified false so the next pass retries.
			continue
		}

		if err := emailRepo.UpdateClassification(userID, email.EmailID, string(classification.Action)); err != nil {
			log.Printf("classifier pass: persist classification for %s: %v", email.EmailID, err)
			continue
		}
		registry.UpdateEmailClassification(email.EmailID, string(classification.Action))

		switch classification.Action {
		case classifierdomain.ActionReply, classifierdomain.ActionForward, classifierdomain.ActionNewEmail:
			draftCount++
		}

		if cfg.EmailProcessing.AutoActions {
			dispatchAction(ctx, manager, userID, tag, executor, email, classification)
		}
	}

	if err := registry.Flush(); err != nil {
		log.Printf("classifier pass: flush registry for %s: %v", userID, err)
	}
	notifier.NotifyDraftsReady(ctx, userID, draftCount)
}

func dispatchAction(ctx context.Context, manager *syncusecase.Manager, userID string, tag provdomain.Tag, executor *actionusecase.Executor, email contentdomain.Email, classification classifierdomain.Classification) {
	adapter := manager.AdapterFor(userID, tag)
	if adapter == nil {
		return
	}
	if ok, err := adapter.Authenticate(ctx); err != nil || !ok {
		log.Printf("action executor: authenticate %s/%s: %v", userID, tag, err)
		return
	}
	if err := executor.Execute(ctx, adapter, userID, email, classification); err != nil {
		log.Printf("action executor: %s on %s: %v", classification.Action, email.EmailID, err)
	}
}

func conversationHistory(emailRepo *repository.EmailRepository, userID string, email contentdomain.Email) []classifierdomain.ConversationEmail {
	if email.ConversationID == "" {
		return nil
	}
	thread, err := emailRepo.GetByConversation(userID, email.ConversationID)
	if err != nil {
		return nil
	}
	var history []classifierdomain.ConversationEmail
	for _, e := range thread {
		if e.ID == email.ID {
			continue
		}
		subject := ""
		if e.Subject != nil {
			subject = *e.Subject
		}
		history = append(history, classifierdomain.ConversationEmail{
			From: e.Sender, Subject: subject, Date: e.SentDate.String(), Content: e.BodyText,
		})
	}
	return history
}

func joinRecipients(recipients contentdomain.StringArray) string {
	out := ""
	for i, r := range recipients {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}
