// Command toolserver wires the Tool-Server business logic (C9) — the
// stdio JSON-RPC transport an external assistant process speaks to
// reach these tools is out of scope (spec §1); this binary only
// exposes the same business logic over a thin HTTP surface so it can
// be exercised without that transport.
package main

import (
	"log"
	"net/http"

	contentdomain "github.com/syncorch/syncd/internal/content/domain"
	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/internal/provider/googlecalendar"
	"github.com/syncorch/syncd/internal/provider/googledrive"
	"github.com/syncorch/syncd/internal/provider/googleemail"
	"github.com/syncorch/syncd/internal/provider/microsoftemail"
	"github.com/syncorch/syncd/internal/provider/onedrive"
	"github.com/syncorch/syncd/internal/provider/outlookcalendar"
	toolserverusecase "github.com/syncorch/syncd/internal/toolserver/usecase"
	"github.com/syncorch/syncd/pkg/config"
	"github.com/syncorch/syncd/pkg/retry"
	"github.com/syncorch/syncd/pkg/vectorstore"

	"github.com/gin-gonic/gin"
)

const attachmentCap = 10 * 1024 * 1024

func main() {
	cfg := config.Load()

	vectorStore, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatalf("connect to vector store: %v", err)
	}
	credStore := credusecase.NewStore(cfg.DataRoot, map[creddomain.Provider]credusecase.Refresher{})
	retryPolicy := retry.Default()

	toolServer := toolserverusecase.New(cfg, vectorStore, credStore)
	toolServer.RegisterEmailAdapter(provdomain.TagGoogleEmail, func(userID string) provdomain.EmailAdapter {
		return googleemail.New(userID, cfg.GoogleClientID, cfg.GoogleClientSecret, credStore, retryPolicy, attachmentCap)
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

	router := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	router.POST("/tools/retrieve_documents", func(c *gin.Context) {
		var body struct {
			UserID string `json:"user_id"`
			Prompt string `json:"prompt"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		chunks, err := toolServer.RetrieveDocuments(c.Request.Context(), body.UserID, body.Prompt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"chunks": chunks})
	})

	// /tools/invoke is the generic adapter-multiplexer operation from
	// spec §6: {tool_name, parameters{}} -> {success, data?, error?}.
	// The two routes around it (/tools/retrieve_documents above,
	// /tools/list_emails below) are older, tool-specific routes kept
	// around for direct smoke-testing against a single capability.
	router.POST("/tools/invoke", func(c *gin.Context) {
		var body struct {
			UserID     string                 `json:"user_id"`
			ToolName   string                 `json:"tool_name"`
			Parameters map[string]interface{} `json:"parameters"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result := toolServer.Invoke(c.Request.Context(), body.UserID, body.ToolName, body.Parameters)
		c.JSON(http.StatusOK, result)
	})

	router.POST("/tools/list_emails", func(c *gin.Context) {
		var body struct {
			UserID string `json:"user_id"`
			Limit  int    `json:"limit"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		adapter, err := toolServer.ResolveEmailAdapter(c.Request.Context(), body.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if _, err := adapter.Authenticate(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		iter, total, err := adapter.FetchEmails(c.Request.Context(), provdomain.FetchOptions{Limit: body.Limit})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var out []contentdomain.Email
		for {
			email, err := iter.Next(c.Request.Context())
			if err != nil {
				break
			}
			out = append(out, contentdomain.Email{EmailID: email.MessageID, Sender: email.Sender, BodyText: email.BodyText})
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "emails": out})
	})

	log.Println("tool server listening on :8081")
	if err := router.Run(":8081"); err != nil {
		log.Fatalf("tool server stopped: %v", err)
	}
}
