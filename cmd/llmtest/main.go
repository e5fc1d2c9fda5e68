// llmtest classifies a few utterances against the configured Bedrock model
// so the prompt and the fallback ruleset can be checked without placing a
// phone call. Run with no args for the built-in samples, or pass utterances.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-voice-agent/cmd/mainconfig"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/intent"
	"github.com/wolfman30/clinic-voice-agent/internal/llm"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var samples = []string{
	"Hi, I'd like to book an appointment for tomorrow morning",
	"My name is Sarah Johnson",
	"Can I talk to a real person please",
	"What are your hours on Saturday?",
	"Also book my son James for the same time",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New("warn")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var client llm.Client
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			log.Fatalf("load AWS config: %v", err)
		}
		client = llm.TimeoutClient{
			Client:  llm.NewBedrockClient(mainconfig.NewBedrockRuntime(awsCfg, cfg)),
			Timeout: cfg.LLMTimeout,
		}
		fmt.Printf("model: %s\n\n", cfg.BedrockModelID)
	} else {
		fmt.Println("BEDROCK_MODEL_ID not set, exercising the keyword ruleset only")
		fmt.Println()
	}
	classifier := intent.NewClassifier(client, cfg.BedrockModelID, logger)

	utterances := samples
	if len(os.Args) > 1 {
		utterances = os.Args[1:]
	}

	for _, utterance := range utterances {
		start := time.Now()
		res := classifier.Classify(ctx, utterance, nil)
		elapsed := time.Since(start).Round(time.Millisecond)

		entities, _ := json.Marshal(res.Entities)
		fmt.Printf("%q\n", utterance)
		fmt.Printf("  intent=%s confidence=%.2f source=%s elapsed=%v\n",
			res.Intent, res.Confidence, res.Source, elapsed)
		fmt.Printf("  entities=%s\n\n", entities)
	}
}
