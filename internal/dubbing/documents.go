package dubbing

import (
	"context"
	"encoding/json"

	"overdub/internal/artifacts"
	"overdub/internal/services"
	"overdub/internal/services/stt"
	"overdub/internal/services/tts"
)

// translationDoc is the JSON payload stored as the translation artifact:
// the translated text of every transcript segment with the original timing.
type translationDoc struct {
	SourceLanguage string          `json:"sourceLanguage"`
	TargetLanguage string          `json:"targetLanguage"`
	Segments       []tts.TimedText `json:"segments"`
}

func loadTranscript(ctx context.Context, store artifacts.Store, ref string) (stt.Transcript, error) {
	var doc stt.Transcript
	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, services.Wrap(services.ErrPermanent, "", "load transcript", "corrupt transcript artifact", err)
	}
	return doc, nil
}

func loadTranslation(ctx context.Context, store artifacts.Store, ref string) (translationDoc, error) {
	var doc translationDoc
	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, services.Wrap(services.ErrPermanent, "", "load translation", "corrupt translation artifact", err)
	}
	return doc, nil
}

func storeJSON(ctx context.Context, store artifacts.Store, key string, doc any) (string, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "", "store artifact", "encode document", err)
	}
	return artifacts.PutString(ctx, store, key, string(encoded))
}
