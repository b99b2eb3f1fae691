package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

const (
	serverName          = "uk-legal-assistant"
	toolClassify        = "classify_document"
	toolAsk             = "ask_legal_question"
	defaultMaxFileBytes = 10 << 20
)

// Tools exposes document classification and question answering as MCP tools.
type Tools struct {
	answerer     ports.LegalAnswerer
	extractor    ports.TextExtractor
	classifier   ports.RelevanceClassifier
	analyzer     ports.DocumentAnalyzer
	maxFileBytes int64
}

func NewTools(
	answerer ports.LegalAnswerer,
	extractor ports.TextExtractor,
	classifier ports.RelevanceClassifier,
	analyzer ports.DocumentAnalyzer,
	maxFileBytes int64,
) *Tools {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &Tools{
		answerer:     answerer,
		extractor:    extractor,
		classifier:   classifier,
		analyzer:     analyzer,
		maxFileBytes: maxFileBytes,
	}
}

func (t *Tools) Server(version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolClassify,
		mcp.WithDescription("Check whether a local document (pdf, docx, doc, txt, xlsx) is a UK employment or legal document and explain the score."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the document to classify"),
		),
	), t.classifyDocument)

	s.AddTool(mcp.NewTool(toolAsk,
		mcp.WithDescription("Answer a UK employment law question grounded in indexed legislation."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The legal question in plain English"),
		),
		mcp.WithString("session_id",
			mcp.Description("Optional conversation id to keep follow-up context"),
		),
	), t.askLegalQuestion)

	return s
}

type classifyResult struct {
	Filename   string                     `json:"filename"`
	Pages      int                        `json:"pages"`
	Assessment domain.RelevanceAssessment `json:"assessment"`
	Analysis   *domain.DocumentAnalysis   `json:"analysis,omitempty"`
}

func (t *Tools) classifyDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filename := filepath.Base(path)
	if !t.extractor.Supports(filename) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: unsupported format, expected pdf, doc, docx, txt or xlsx", filename)), nil
	}

	data, err := readLimited(path, t.maxFileBytes)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	extracted, err := t.extractor.Extract(ctx, filename, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := classifyResult{
		Filename:   filename,
		Pages:      extracted.Pages,
		Assessment: t.classifier.Classify(extracted.Text, filename),
	}
	if result.Assessment.IsRelevant && t.analyzer != nil {
		analysis := t.analyzer.Analyze(extracted.Text)
		result.Analysis = &analysis
	}
	return jsonResult(result)
}

func (t *Tools) askLegalQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := t.answerer.Answer(ctx, domain.AnswerRequest{
		Query:     question,
		SessionID: request.GetString("session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(answer.Text)
	if len(answer.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, src := range answer.Sources {
			b.WriteString("- ")
			b.WriteString(src)
			b.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document", errors.New("file exceeds size limit"))
	}
	return data, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
