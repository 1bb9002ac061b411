// Package usecase implements the Tool-Server business logic (C9): the
// retrieve_documents tool with server-fixed retrieval parameters, and
// the adapter multiplexer that routes a capability to the user's
// preferred provider. The stdio JSON-RPC transport/framing that an
// external assistant process speaks is explicitly out of scope (spec
// §1) — this package only implements what a transport layer would
// call into.
package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	provdomain "github.com/syncorch/syncd/internal/provider/domain"
	"github.com/syncorch/syncd/pkg/config"
	"github.com/syncorch/syncd/pkg/errs"
	"github.com/syncorch/syncd/pkg/vectorstore"
)

// Capability is one of the three adapter families the multiplexer
// routes across providers.
type Capability string

const (
	CapabilityEmail        Capability = "email"
	CapabilityCloudStorage Capability = "cloud_storage"
	CapabilityCalendar     Capability = "calendar"
)

type emailFactory func(userID string) provdomain.EmailAdapter
type driveFactory func(userID string) provdomain.DriveAdapter
type calendarFactory func(userID string) provdomain.CalendarAdapter

// ToolServer exposes retrieve_documents and the per-capability
// provider multiplexer.
type ToolServer struct {
	cfg       *config.Config
	vector    *vectorstore.Store
	credStore *credusecase.Store

	emailFactories    map[provdomain.Tag]emailFactory
	driveFactories    map[provdomain.Tag]driveFactory
	calendarFactories map[provdomain.Tag]calendarFactory
}

func New(cfg *config.Config, vector *vectorstore.Store, credStore *credusecase.Store) *ToolServer {
	return &ToolServer{
		cfg: cfg, vector: vector, credStore: credStore,
		emailFactories:    make(map[provdomain.Tag]emailFactory),
		driveFactories:    make(map[provdomain.Tag]driveFactory),
		calendarFactories: make(map[provdomain.Tag]calendarFactory),
	}
}

func (t *ToolServer) RegisterEmailAdapter(tag provdomain.Tag, f emailFactory)       { t.emailFactories[tag] = f }
func (t *ToolServer) RegisterDriveAdapter(tag provdomain.Tag, f driveFactory)       { t.driveFactories[tag] = f }
func (t *ToolServer) RegisterCalendarAdapter(tag provdomain.Tag, f calendarFactory) { t.calendarFactories[tag] = f }

// preferredProvider reports the first of {Google, Microsoft} for which
// the Token Store holds a valid credential, Google taking priority per
// spec §4.9.
func (t *ToolServer) preferredProvider(ctx context.Context, userID string) (creddomain.Provider, bool) {
	if t.credStore.Check(ctx, userID, creddomain.ProviderGoogle).Valid {
		return creddomain.ProviderGoogle, true
	}
	if t.credStore.Check(ctx, userID, creddomain.ProviderMicrosoft).Valid {
		return creddomain.ProviderMicrosoft, true
	}
	return "", false
}

func tagsFor(capability Capability, provider creddomain.Provider) provdomain.Tag {
	switch capability {
	case CapabilityEmail:
		if provider == creddomain.ProviderGoogle {
			return provdomain.TagGoogleEmail
		}
		return provdomain.TagMicrosoftEmail
	case CapabilityCloudStorage:
		if provider == creddomain.ProviderGoogle {
			return provdomain.TagGoogleDrive
		}
		return provdomain.TagOneDrive
	case CapabilityCalendar:
		if provider == creddomain.ProviderGoogle {
			return provdomain.TagGoogleCalendar
		}
		return provdomain.TagOutlookCalendar
	}
	return ""
}

// ResolveEmailAdapter returns the user's preferred EmailAdapter.
func (t *ToolServer) ResolveEmailAdapter(ctx context.Context, userID string) (provdomain.EmailAdapter, error) {
	provider, ok := t.preferredProvider(ctx, userID)
	if !ok {
		return nil, errs.New(errs.AuthFailed, "no valid credential for any email provider", nil)
	}
	factory, ok := t.emailFactories[tagsFor(CapabilityEmail, provider)]
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "no email adapter registered for preferred provider", nil)
	}
	return factory(userID), nil
}

// ResolveDriveAdapter returns the user's preferred DriveAdapter.
func (t *ToolServer) ResolveDriveAdapter(ctx context.Context, userID string) (provdomain.DriveAdapter, error) {
	provider, ok := t.preferredProvider(ctx, userID)
	if !ok {
		return nil, errs.New(errs.AuthFailed, "no valid credential for any storage provider", nil)
	}
	factory, ok := t.driveFactories[tagsFor(CapabilityCloudStorage, provider)]
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "no drive adapter registered for preferred provider", nil)
	}
	return factory(userID), nil
}

// ResolveCalendarAdapter returns the user's preferred CalendarAdapter.
func (t *ToolServer) ResolveCalendarAdapter(ctx context.Context, userID string) (provdomain.CalendarAdapter, error) {
	provider, ok := t.preferredProvider(ctx, userID)
	if !ok {
		return nil, errs.New(errs.AuthFailed, "no valid credential for any calendar provider", nil)
	}
	factory, ok := t.calendarFactories[tagsFor(CapabilityCalendar, provider)]
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "no calendar adapter registered for preferred provider", nil)
	}
	return factory(userID), nil
}

// RetrieveDocuments runs the retrieve_documents tool. top_k and
// min_score come from server configuration (cfg.MCP.DefaultTopK and
// cfg.MCP.MinScore); cfg.MCP's rerank, split-prompt and HyDE settings
// are not applied. None of these is accepted as a parameter here, so a
// prompt-controlled caller cannot widen retrieval scope past what the
// operator configured.
func (t *ToolServer) RetrieveDocuments(ctx context.Context, userID, prompt string) ([]vectorstore.ScoredChunk, error) {
	return t.vector.Query(ctx, userID, prompt, t.cfg.MCP.DefaultTopK, t.cfg.MCP.MinScore)
}

// ToolResult is the adapter-multiplexer's wire shape per spec §6:
// {success, data?, error?}.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type toolHandler func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error)

// toolHandlers is the tool_name routing table behind Invoke. Every
// entry resolves the caller's preferred provider for its capability
// (email/cloud_storage/calendar) and dispatches one EmailAdapter,
// DriveAdapter or CalendarAdapter method — retrieve_documents is the
// one exception, since it goes straight to the Vector Store with
// server-fixed retrieval parameters rather than through a provider.
var toolHandlers = map[string]toolHandler{
	"retrieve_documents": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		return t.RetrieveDocuments(ctx, userID, stringParam(params, "prompt"))
	},
	"list_emails": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		limit := intParam(params, "limit", 25)
		iter, total, err := adapter.FetchEmails(ctx, provdomain.FetchOptions{
			Query: stringParam(params, "query"), Limit: limit,
		})
		if err != nil {
			return nil, err
		}
		emails, err := drainEmails(ctx, iter, limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"emails": emails, "total": total}, nil
	},
	"send_email": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.SendEmail(ctx, stringParam(params, "subject"), stringParam(params, "body"),
			stringsParam(params, "to"), stringsParam(params, "cc"), stringsParam(params, "bcc"), stringParam(params, "html_body"))
	},
	"reply_email": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.ReplyToEmail(ctx, stringParam(params, "email_id"), stringParam(params, "body"),
			stringsParam(params, "cc"), boolParam(params, "include_original", true))
	},
	"forward_email": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.ForwardEmail(ctx, stringParam(params, "email_id"), stringsParam(params, "recipients"), stringParam(params, "comment"))
	},
	"flag_email": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return nil, adapter.FlagEmail(ctx, stringParam(params, "email_id"), boolPtrParam(params, "mark_important"), boolPtrParam(params, "mark_read"))
	},
	"move_email": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveEmailAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return nil, adapter.MoveEmail(ctx, stringParam(params, "email_id"), provdomain.WellKnownFolder(stringParam(params, "destination")))
	},
	"list_files": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveDriveAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.ListFiles(ctx, provdomain.ListFilesOptions{
			FolderID: stringParam(params, "folder_id"), Query: stringParam(params, "query"), Limit: intParam(params, "limit", 25),
		})
	},
	"list_folders": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveDriveAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.ListFolders(ctx, stringParam(params, "parent_folder_id"))
	},
	"get_file_content": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveDriveAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		content, mimeType, extension, err := adapter.GetFileContent(ctx, stringParam(params, "file_id"))
		if err != nil {
			return nil, err
		}
		defer content.Close()
		raw, err := io.ReadAll(content)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"content_base64_len": len(raw), "mime_type": mimeType, "extension": extension}, nil
	},
	"list_events": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveCalendarAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.ListEvents(ctx, timeParam(params, "from"), timeParam(params, "to"))
	},
	"create_event": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveCalendarAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.CreateEvent(ctx, eventParam(params))
	},
	"update_event": func(ctx context.Context, t *ToolServer, userID string, params map[string]interface{}) (interface{}, error) {
		adapter, err := t.ResolveCalendarAdapter(ctx, userID)
		if err != nil {
			return nil, err
		}
		return adapter.UpdateEvent(ctx, eventParam(params))
	},
}

// Invoke is the adapter-multiplexer operation from spec §4.9/§6: given
// (userID, tool_name, parameters), resolve the user's preferred
// provider for the tool's capability and dispatch to it, always
// returning a {success, data?, error?} result rather than a Go error —
// per the wire protocol, a failed tool call is a normal response, not
// a transport failure.
func (t *ToolServer) Invoke(ctx context.Context, userID, toolName string, params map[string]interface{}) ToolResult {
	handler, ok := toolHandlers[toolName]
	if !ok {
		return ToolResult{Error: fmt.Sprintf("unknown tool: %s", toolName)}
	}
	data, err := handler(ctx, t, userID, params)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return ToolResult{Success: true, Data: data}
}

func drainEmails(ctx context.Context, iter provdomain.EmailIterator, limit int) ([]provdomain.Email, error) {
	var out []provdomain.Email
	for limit <= 0 || len(out) < limit {
		email, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, email)
	}
	return out, nil
}

// The parameter helpers below tolerate whatever JSON unmarshalling
// hands them (map[string]interface{} straight off the wire): a missing
// or wrong-typed key yields the zero value rather than a dispatch
// error, since the underlying adapter call is the one place that
// should reject a genuinely invalid argument.

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func stringsParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func boolParam(params map[string]interface{}, key string, fallback bool) bool {
	b, ok := params[key].(bool)
	if !ok {
		return fallback
	}
	return b
}

func boolPtrParam(params map[string]interface{}, key string) *bool {
	b, ok := params[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func timeParam(params map[string]interface{}, key string) time.Time {
	s, ok := params[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func eventParam(params map[string]interface{}) provdomain.CalendarEvent {
	return provdomain.CalendarEvent{
		EventID:     stringParam(params, "event_id"),
		Summary:     stringParam(params, "summary"),
		Description: stringParam(params, "description"),
		Start:       timeParam(params, "start"),
		End:         timeParam(params, "end"),
		Attendees:   stringsParam(params, "attendees"),
		Location:    stringParam(params, "location"),
	}
}
