// CLAUDE:SUMMARY MCP tool surface: submit, status, list and resubmit exposed to agent clients.
// Package mcptools exposes the pipeline as Model Context Protocol tools, so
// agent clients can submit documents and poll results without the HTTP API.
package mcptools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/blobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/docpipe"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/idgen"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server is the MCP surface over the pipeline stores.
type Server struct {
	jobs     *jobstore.Store
	blobs    *blobstore.Store
	maxBytes int64
	newJobID idgen.Generator
	newBlob  idgen.Generator
	server   *mcp.Server
}

// NewServer creates the MCP server and registers every tool.
func NewServer(jobs *jobstore.Store, blobs *blobstore.Store, maxBytes int64) *Server {
	s := &Server{
		jobs:     jobs,
		blobs:    blobs,
		maxBytes: maxBytes,
		newJobID: idgen.Prefixed("job_", idgen.Default),
		newBlob:  idgen.Prefixed("blob_", idgen.Default),
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "sturgeon-pipeline",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "submit_document",
		Description: "Submit a document for asynchronous extraction and analysis",
	}, s.handleSubmit)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document_status",
		Description: "Get a submitted document's lifecycle status and results",
	}, s.handleStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List an owner's documents, newest first",
	}, s.handleList)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resubmit_document",
		Description: "Re-queue a failed document for another processing attempt",
	}, s.handleResubmit)
}

// SubmitInput is the input schema for submit_document.
type SubmitInput struct {
	Filename      string `json:"filename" jsonschema:"declared file name, extension selects the format unless format is set"`
	Owner         string `json:"owner" jsonschema:"opaque owner reference used for listing"`
	Format        string `json:"format,omitempty" jsonschema:"one of pdf, docx, doc, txt; overrides the filename extension"`
	ContentBase64 string `json:"content_base64" jsonschema:"document bytes, base64-encoded"`
}

// SubmitOutput is the output schema for submit_document.
type SubmitOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(ctx context.Context, _ *mcp.CallToolRequest, input SubmitInput) (*mcp.CallToolResult, SubmitOutput, error) {
	if input.Owner == "" {
		return nil, SubmitOutput{}, errors.New("owner is required")
	}
	declared := input.Format
	if declared == "" {
		declared = filepath.Ext(input.Filename)
	}
	format, err := docpipe.ParseFormat(declared)
	if err != nil {
		return nil, SubmitOutput{}, err
	}

	content, err := base64.StdEncoding.DecodeString(input.ContentBase64)
	if err != nil {
		return nil, SubmitOutput{}, fmt.Errorf("decode content: %w", err)
	}
	if len(content) == 0 {
		return nil, SubmitOutput{}, errors.New("empty file")
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return nil, SubmitOutput{}, fmt.Errorf("file exceeds %d bytes", s.maxBytes)
	}

	blobKey := s.newBlob()
	if err := s.blobs.Put(blobKey, content); err != nil {
		return nil, SubmitOutput{}, fmt.Errorf("store content: %w", err)
	}
	job := &jobstore.Job{
		ID:        s.newJobID(),
		OwnerID:   input.Owner,
		Filename:  input.Filename,
		Format:    string(format),
		SizeBytes: int64(len(content)),
		BlobKey:   blobKey,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// Undo the stored upload; a blob without a job record is unreachable.
		s.blobs.Delete(blobKey)
		return nil, SubmitOutput{}, fmt.Errorf("create job: %w", err)
	}
	return nil, SubmitOutput{ID: job.ID, Status: job.Status}, nil
}

// StatusInput is the input schema for get_document_status.
type StatusInput struct {
	ID string `json:"id" jsonschema:"the job id returned by submit_document"`
}

// StatusOutput mirrors the job record's populated fields.
type StatusOutput struct {
	Job *jobstore.Job `json:"job"`
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	job, err := s.jobs.Get(ctx, input.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if job == nil {
		return nil, StatusOutput{}, fmt.Errorf("job %s not found", input.ID)
	}
	return nil, StatusOutput{Job: job}, nil
}

// ListInput is the input schema for list_documents.
type ListInput struct {
	Owner string `json:"owner" jsonschema:"owner reference to list documents for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of jobs to return (default 50)"`
}

// ListOutput is the output schema for list_documents.
type ListOutput struct {
	Jobs  []*jobstore.Job `json:"jobs"`
	Count int             `json:"count"`
}

func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	if input.Owner == "" {
		return nil, ListOutput{}, errors.New("owner is required")
	}
	jobs, err := s.jobs.ListByOwner(ctx, input.Owner, input.Limit)
	if err != nil {
		return nil, ListOutput{}, err
	}
	return nil, ListOutput{Jobs: jobs, Count: len(jobs)}, nil
}

// ResubmitInput is the input schema for resubmit_document.
type ResubmitInput struct {
	ID string `json:"id" jsonschema:"the failed job id to re-queue"`
}

// ResubmitOutput is the output schema for resubmit_document.
type ResubmitOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleResubmit(ctx context.Context, _ *mcp.CallToolRequest, input ResubmitInput) (*mcp.CallToolResult, ResubmitOutput, error) {
	if err := s.jobs.Resubmit(ctx, input.ID); err != nil {
		return nil, ResubmitOutput{}, err
	}
	return nil, ResubmitOutput{ID: input.ID, Status: jobstore.StatusReceived}, nil
}
