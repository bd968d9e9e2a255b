package app

import (
	"fmt"

	"github.com/yungbote/rag-backend/internal/data/repos"
	"github.com/yungbote/rag-backend/internal/modules/chat/agent"
	"github.com/yungbote/rag-backend/internal/modules/ingestion"
	"github.com/yungbote/rag-backend/internal/modules/ingestion/splitter"
	"github.com/yungbote/rag-backend/internal/modules/retrieval"
	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/services"
)

type Services struct {
	Chat      services.ChatService
	Documents services.DocumentService

	Agent     *agent.Agent
	Retriever *retrieval.Retriever
	Pipeline  *ingestion.Pipeline
}

func wireServices(log *logger.Logger, clients Clients, rs repos.Repos, conv Conversation, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	retriever, err := retrieval.NewRetriever(log, clients.Vectors, clients.OpenAI, clients.Reranker, retrieval.ResolveConfigFromEnv(), metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init retriever: %w", err)
	}
	toolbox, err := agent.NewToolbox(retrieval.NewTool(retriever))
	if err != nil {
		return Services{}, fmt.Errorf("init toolbox: %w", err)
	}
	runner, err := agent.New(log, agent.NewOpenAIModel(clients.OpenAI), toolbox, conv.Messages, conv.History, metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init agent: %w", err)
	}

	scfg, err := splitter.ResolveConfigFromEnv()
	if err != nil {
		return Services{}, fmt.Errorf("splitter config: %w", err)
	}
	split, err := splitter.New(scfg)
	if err != nil {
		return Services{}, fmt.Errorf("init splitter: %w", err)
	}
	pipeline, err := ingestion.NewPipeline(
		log,
		ingestion.NewUnstructuredExtractor(clients.Unstructured),
		split,
		clients.OpenAI,
		clients.Vectors,
		rs.Documents,
		ingestion.ResolveConfigFromEnv(),
		metrics,
	)
	if err != nil {
		return Services{}, fmt.Errorf("init ingestion pipeline: %w", err)
	}

	return Services{
		Chat:      services.NewChatService(log, runner, conv.Messages, conv.History, services.ChatTurnTimeoutFromEnv()),
		Documents: services.NewDocumentService(log, pipeline),
		Agent:     runner,
		Retriever: retriever,
		Pipeline:  pipeline,
	}, nil
}
