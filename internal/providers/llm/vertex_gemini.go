package llm

import (
	"context"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

var ErrEmptyResponse = errors.New("llm returned no text")

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Model() string { return v.modelName }

func (v *VertexGemini) model(req Request) *vertexgenai.GenerativeModel {
	m := v.client.GenerativeModel(v.modelName)
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		m.SetTemperature(*req.Temperature)
	}
	return m
}

func parts(req Request) []vertexgenai.Part {
	out := make([]vertexgenai.Part, 0, len(req.Blobs)+1)
	for _, b := range req.Blobs {
		out = append(out, vertexgenai.Blob{MIMEType: b.MIMEType, Data: b.Data})
	}
	if req.Prompt != "" {
		out = append(out, vertexgenai.Text(req.Prompt))
	}
	return out
}

func history(msgs []Message) []*vertexgenai.Content {
	out := make([]*vertexgenai.Content, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, &vertexgenai.Content{
			Role:  string(m.Role),
			Parts: []vertexgenai.Part{vertexgenai.Text(m.Text)},
		})
	}
	return out
}

func (v *VertexGemini) Generate(ctx context.Context, req Request) (string, error) {
	m := v.model(req)

	var (
		resp *vertexgenai.GenerateContentResponse
		err  error
	)
	if len(req.History) > 0 {
		cs := m.StartChat()
		cs.History = history(req.History)
		resp, err = cs.SendMessage(ctx, parts(req)...)
	} else {
		resp, err = m.GenerateContent(ctx, parts(req)...)
	}
	if err != nil {
		return "", err
	}

	text := textOf(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (v *VertexGemini) StreamAnswer(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		m := v.model(req)
		var it *vertexgenai.GenerateContentResponseIterator
		if len(req.History) > 0 {
			cs := m.StartChat()
			cs.History = history(req.History)
			it = cs.SendMessageStream(ctx, parts(req)...)
		} else {
			it = m.GenerateContentStream(ctx, parts(req)...)
		}

		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if t := textOf(resp); t != "" {
				select {
				case out <- t:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errs
}

func textOf(resp *vertexgenai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// first candidate only
		break
	}
	return sb.String()
}
