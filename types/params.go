package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func validateStruct(s any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ChatParams carries one chat turn. Conversation state is explicit:
// the caller owns the history, the model choice and the RAG toggle.
type ChatParams struct {
	Message    string    `json:"message" validate:"required"`
	History    []Message `json:"history" validate:"dive"`
	Model      string    `json:"model,omitempty"`
	RagEnabled *bool     `json:"rag_enabled,omitempty"`
}

// RAGRequested reports whether retrieval is requested; the toggle
// defaults to on when the field is absent.
func (p *ChatParams) RAGRequested() bool {
	return p.RagEnabled == nil || *p.RagEnabled
}

func (p *ChatParams) Validate() map[string]string {
	return validateStruct(p)
}

type AddDocumentParams struct {
	Content string `json:"content" validate:"required"`
	Title   string `json:"title,omitempty"`
}

func (p *AddDocumentParams) Validate() map[string]string {
	return validateStruct(p)
}

type SearchParams struct {
	Query         string   `json:"query" validate:"required"`
	Limit         int      `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" validate:"omitempty,min=0,max=1"`
}

func (p *SearchParams) Validate() map[string]string {
	return validateStruct(p)
}

type UpdateChunkParams struct {
	Content string `json:"content" validate:"required"`
}

func (p *UpdateChunkParams) Validate() map[string]string {
	return validateStruct(p)
}

type UpdateTitleParams struct {
	Title string `json:"title" validate:"required"`
}

func (p *UpdateTitleParams) Validate() map[string]string {
	return validateStruct(p)
}

type AddChunkParams struct {
	Content string `json:"content" validate:"required"`
}

func (p *AddChunkParams) Validate() map[string]string {
	return validateStruct(p)
}
