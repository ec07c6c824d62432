package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates all observer handlers (prompt, model, tool) into one callbacks.Handler.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Handler()
}

// NewModelCallbacks constructs a callbacks.Handler for text model calls only.
func NewModelCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler()).
		Handler()
}
