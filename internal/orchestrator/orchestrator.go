// Package orchestrator dispatches chat queries to scan, report, and
// knowledge handlers, and owns the network scan pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/5kyf4ll/molly-project/internal/enrichment"
	"github.com/5kyf4ll/molly-project/internal/llm"
	"github.com/5kyf4ll/molly-project/internal/scanner"
	"github.com/5kyf4ll/molly-project/internal/store"
	"go.uber.org/zap"
)

// Action names the orchestrator dispatches. The model may also request
// analyze_service_vulnerability and get_cve_details; those are answered as
// knowledge turns rather than dispatched.
const (
	ActionStartNetworkScan   = "start_network_scan"
	ActionGetScanResults     = "get_scan_results"
	ActionDetailedHostReport = "generate_detailed_host_report"
)

// CVEResolver resolves CVE records for a service name and version
type CVEResolver interface {
	LookupService(ctx context.Context, serviceName, version string) []enrichment.CVERecord
}

// PDFRenderer renders markdown report content to a PDF file
type PDFRenderer interface {
	Generate(markdown, filename, sessionName, hostIP string) (string, error)
}

// Result is the orchestrator's answer to one chat query
type Result struct {
	Response string `json:"response"`
	ScanID   int64  `json:"scan_id,omitempty"`
	PDFPath  string `json:"pdf_path,omitempty"`
}

// Options configures an Orchestrator
type Options struct {
	Store       *store.Store
	Nmap        *scanner.Nmap
	CVEs        CVEResolver
	PDF         PDFRenderer
	Completer   llm.ChatCompleter
	Model       string
	ScanProfile string
	ScanTimeout time.Duration
	Logger      *zap.Logger
}

// Orchestrator is the public surface of the assessment core. It resolves a
// conversation context per chat id, extracts tool intents, and routes them.
type Orchestrator struct {
	store       *store.Store
	nmap        *scanner.Nmap
	cves        CVEResolver
	pdf         PDFRenderer
	completer   llm.ChatCompleter
	model       string
	scanProfile string
	scanTimeout time.Duration
	logger      *zap.Logger

	session *sessionState

	chatsMu sync.Mutex
	chats   map[string]*llm.ConversationContext

	// chatLocks serializes concurrent queries per chat id; conversation
	// contexts are not internally synchronized across ask/inject sequences
	chatLocks sync.Map
}

// New creates an Orchestrator
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	profile := opts.ScanProfile
	if profile == "" {
		profile = scanner.ProfileDefault
	}
	timeout := opts.ScanTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Orchestrator{
		store:       opts.Store,
		nmap:        opts.Nmap,
		cves:        opts.CVEs,
		pdf:         opts.PDF,
		completer:   opts.Completer,
		model:       opts.Model,
		scanProfile: profile,
		scanTimeout: timeout,
		logger:      logger,
		session:     newSessionState(),
		chats:       make(map[string]*llm.ConversationContext),
	}
}

// ChatSession returns the conversation context for a chat id, creating it
// lazily on first reference.
func (o *Orchestrator) ChatSession(chatID string) *llm.ConversationContext {
	o.chatsMu.Lock()
	defer o.chatsMu.Unlock()

	mc, ok := o.chats[chatID]
	if !ok {
		o.logger.Info("creating new chat session", zap.String("chat_id", chatID))
		mc = llm.NewConversationContext(o.completer, o.model, o.logger)
		o.chats[chatID] = mc
	}
	return mc
}

// ResetChatSession discards the chat's history and starts a fresh context
func (o *Orchestrator) ResetChatSession(chatID string) {
	o.chatsMu.Lock()
	defer o.chatsMu.Unlock()
	o.chats[chatID] = llm.NewConversationContext(o.completer, o.model, o.logger)
	o.logger.Info("chat session reset", zap.String("chat_id", chatID))
}

// SessionStatus reports the active scan surface for the status API
func (o *Orchestrator) SessionStatus() (status, activeProject string, lastScanID int64) {
	return o.session.Status()
}

// lockChat acquires the per-chat serialization lock
func (o *Orchestrator) lockChat(chatID string) *sync.Mutex {
	v, _ := o.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// HandleQuery processes one user chat turn: it asks the model to classify
// the request, then either runs the matching tool handler or returns the
// model's prose. Concurrent queries on the same chat are serialized.
func (o *Orchestrator) HandleQuery(ctx context.Context, userText, chatID string) Result {
	lock := o.lockChat(chatID)
	lock.Lock()
	defer lock.Unlock()

	mc := o.ChatSession(chatID)

	o.logger.Info("processing user query",
		zap.String("chat_id", chatID),
		zap.String("query", userText))

	prose, intent, err := mc.Ask(ctx,
		"Determinar si el usuario solicita una acción del sistema o una respuesta de conocimiento.",
		"Comando de usuario",
		userText,
		"Devolver JSON para acción o texto directo para pregunta de conocimiento. Mantener un historial conversacional.")
	if err != nil {
		o.logger.Error("llm classification failed", zap.String("chat_id", chatID), zap.Error(err))
		return Result{Response: llm.UserMessage(err)}
	}

	if intent == nil {
		return o.handleGeneralQuery(ctx, mc, userText, prose)
	}

	o.logger.Info("model requested action",
		zap.String("chat_id", chatID),
		zap.String("action", intent.Action))

	switch intent.Action {
	case ActionStartNetworkScan:
		return o.handleStartNetworkScan(ctx, mc, intent, userText)
	case ActionGetScanResults:
		return Result{Response: o.handleGetScanResults(ctx, mc, intent)}
	case ActionDetailedHostReport:
		return Result{Response: o.handleDetailedHostReport(ctx, intent)}
	case "analyze_service_vulnerability", "get_cve_details":
		return o.handleGeneralQuery(ctx, mc, userText, "")
	default:
		return Result{Response: fmt.Sprintf(
			"La IA sugirió una acción ('%s') que aún no puedo ejecutar. Por favor, intenta de nuevo o haz una pregunta diferente.",
			intent.Action)}
	}
}

// portQueryPhrases triggers the direct database answer for open-port
// questions instead of an extra model round-trip
var portQueryPhrases = []string{
	"puertos abiertos",
	"servicios",
	"qué puertos",
	"versiones",
	"dame los puertos",
}

// handleGeneralQuery answers a non-action turn. Open-port questions about
// the latest completed scan are answered straight from the store; everything
// else gets the model's prose.
func (o *Orchestrator) handleGeneralQuery(ctx context.Context, mc *llm.ConversationContext, userText, prose string) Result {
	lower := strings.ToLower(userText)
	for _, phrase := range portQueryPhrases {
		if strings.Contains(lower, phrase) {
			if answer, ok := o.answerPortQuery(ctx); ok {
				return Result{Response: answer}
			}
			break
		}
	}

	if prose != "" {
		return Result{Response: prose}
	}

	reply, _, err := mc.Ask(ctx,
		"Responder a la pregunta general del usuario.",
		"Consulta de usuario",
		userText,
		"Respuesta detallada y útil.")
	if err != nil {
		return Result{Response: llm.UserMessage(err)}
	}
	return Result{Response: reply}
}

// answerPortQuery lists open ports and services of the latest completed scan
func (o *Orchestrator) answerPortQuery(ctx context.Context) (string, bool) {
	scans, err := o.store.GetAllScans(ctx)
	if err != nil {
		return "", false
	}

	var latest *store.Scan
	for i := range scans {
		if scans[i].Status == store.ScanStatusCompleted {
			latest = &scans[i]
			break
		}
	}
	if latest == nil {
		return "", false
	}

	hosts, err := o.store.GetHostsForScan(ctx, latest.ID)
	if err != nil || len(hosts) == 0 {
		return fmt.Sprintf("No se encontraron hosts en el último escaneo de %s.", latest.Target), true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Para el último escaneo en %s (ID: %d), se encontraron los siguientes servicios:\n", latest.Target, latest.ID)
	for _, host := range hosts {
		services, err := o.store.GetServicesForHost(ctx, host.ID)
		if err != nil {
			continue
		}
		hostname := host.Hostname
		if hostname == "" {
			hostname = "N/A"
		}
		fmt.Fprintf(&b, "\n**Host: %s (%s)**", host.IPAddress, hostname)
		if len(services) == 0 {
			b.WriteString(": No se encontraron servicios abiertos.\n")
			continue
		}
		b.WriteString("\n")
		for _, svc := range services {
			name := svc.ServiceName
			if name == "" {
				name = "Desconocido"
			}
			version := svc.Version
			if version == "" {
				version = "N/A"
			}
			fmt.Fprintf(&b, "- Puerto: %d/%s, Servicio: %s, Versión: %s\n", svc.Port, svc.Protocol, name, version)
		}
	}
	return b.String(), true
}
