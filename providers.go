// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package lectern

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ai/gemini"
	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/ai/openai"
)

// newProvider builds the embedding provider named by config.Provider.
func newProvider(ctx context.Context, config *ai.Config, logger *slog.Logger) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProviderWithLogger(config, logger)
	case ai.ProviderGemini:
		return gemini.NewProviderWithLogger(ctx, config, logger)
	case ai.ProviderMock:
		embedder := mock.NewMockEmbedder()
		if config.Dimensions > 0 {
			embedder.WithDimensions(config.Dimensions)
		}
		return mock.NewMockProviderWithEmbedder(embedder), nil
	default:
		return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, config.Provider)
	}
}
