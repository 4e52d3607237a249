package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"fitcoach-agent/handler"
	"fitcoach-agent/internal/integrations/openai"
	"fitcoach-agent/internal/integrations/paramstore"
	"fitcoach-agent/internal/integrations/pinecone"
	"fitcoach-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	embedDims := envInt("EMBED_DIMENSIONS", 512)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Pinecone client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	indexer, err := usecase.NewIndexer(ssmClient, openaiClient, pineconeClient, paramPrefix, embedDims, slog.Default())
	if err != nil {
		slog.Error("failed to create indexer service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewIngestHandler(indexer, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
