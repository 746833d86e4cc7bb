package live

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// AudioMIMEType is the format of student microphone frames.
const AudioMIMEType = "audio/pcm;rate=16000"

// GeminiDialer connects to the Gemini Live API.
type GeminiDialer struct {
	client *genai.Client
	model  string
	config *genai.LiveConnectConfig
}

// NewGeminiDialer creates a dialer for model. Replies are spoken audio with
// an output transcription so the client also gets text.
func NewGeminiDialer(client *genai.Client, model, systemPrompt string) *GeminiDialer {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	return &GeminiDialer{client: client, model: model, config: cfg}
}

// Dial opens a live session.
func (d *GeminiDialer) Dial(ctx context.Context) (Session, error) {
	s, err := d.client.Live.Connect(ctx, d.model, d.config)
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return &geminiSession{s: s}, nil
}

type geminiSession struct {
	s *genai.Session
}

func (g *geminiSession) SendAudio(pcm []byte) error {
	return g.s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: AudioMIMEType, Data: pcm},
	})
}

func (g *geminiSession) Receive() (Chunk, error) {
	msg, err := g.s.Receive()
	if err != nil {
		return Chunk{}, err
	}
	return chunkFromMessage(msg), nil
}

func (g *geminiSession) Close() error {
	return g.s.Close()
}

// chunkFromMessage keeps the visible text and the first inline audio payload.
func chunkFromMessage(msg *genai.LiveServerMessage) Chunk {
	var c Chunk
	if msg == nil {
		return c
	}
	c.SetupComplete = msg.SetupComplete != nil

	sc := msg.ServerContent
	if sc == nil {
		return c
	}
	var texts []string
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.Thought {
				continue
			}
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
			if c.Audio == nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				c.Audio = p.InlineData.Data
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		texts = append(texts, sc.OutputTranscription.Text)
	}
	c.Text = strings.Join(texts, " ")
	return c
}
