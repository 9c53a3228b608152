package versioning

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// CountTokens returns the cl100k_base token count of text, or 0 if the
// encoder is unavailable.
func CountTokens(text string) int64 {
	if text == "" {
		return 0
	}

	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Token encoder unavailable, token counts disabled")
			return
		}
		codec = c
	})
	if codec == nil {
		return 0
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to count tokens")
		return 0
	}
	return int64(len(ids))
}
