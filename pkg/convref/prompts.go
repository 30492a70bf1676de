package convref

import (
	"fmt"
	"strings"

	"github.com/easyops/convref-go/pkg/core/message"
)

// AnswerMaxTokens 回答生成的输出预算
const AnswerMaxTokens = 256

const (
	keywordPrompt = "Here are the document(s) separated by <div>s: %s\n" +
		"%s" +
		"This is the query I want to answer: %s\n" +
		"If the document may be able to answer the query, please provide keywords separated by a comma to search the document(s) for, verbatim, in a document to answer the following query. Otherwise, give no response.\n" +
		"Please note each comma-separated keyword will be used to retrieve sentences from the document, so find keywords that will find sentences from the document that may be relevant to answer the question."

	topicPrompt = "Here are keyword summaries of the topics each document covers, separated by <div>s: %s\n"

	excerptRelevancePrompt = "Are the following excerpts relevant for answering the query? Excerpts: %s"

	excerptAnswerPrompt = "You are a helpful assistant. Answer with the single most relevant snippet from the document(s) verbatim and nothing else. Key Excerpts: %s"

	documentsPrompt = "You are a helpful assistant. If needed, refer to the following provided document(s) to answer questions. Documents: %s"

	documentsAnswerPrompt = "You are a helpful assistant. If needed, refer to the following provided document(s) to answer questions. Answer with the single most relevant snippet from the document(s) verbatim and nothing else. Documents: %s"

	documentsRelevancePrompt = "Are the document(s) relevant for answering the query?"
)

// divJoin 每项以 <div> 包裹，按行连接
func divJoin(items []string) string {
	wrapped := make([]string, len(items))
	for i, item := range items {
		wrapped[i] = "<div>" + item + "</div>"
	}
	return strings.Join(wrapped, "\n")
}

func keywordMessages(docContext, topics, query string) []message.Message {
	topicLine := ""
	if topics != "" {
		topicLine = fmt.Sprintf(topicPrompt, topics)
	}
	return []message.Message{
		message.NewUserMessage(fmt.Sprintf(keywordPrompt, docContext, topicLine, query)),
	}
}

// excerptRelevanceMessages 仅以查询轮次为上下文
func excerptRelevanceMessages(queryTurn message.Message, evidence []string) []message.Message {
	return []message.Message{
		queryTurn,
		message.NewUserMessage(fmt.Sprintf(excerptRelevancePrompt, divJoin(evidence))),
	}
}

func withSystem(system string, conversation []message.Message) []message.Message {
	msgs := make([]message.Message, 0, len(conversation)+1)
	msgs = append(msgs, message.NewSystemMessage(system))
	return append(msgs, conversation...)
}

func excerptAnswerMessages(evidence []string, conversation []message.Message) []message.Message {
	return withSystem(fmt.Sprintf(excerptAnswerPrompt, divJoin(evidence)), conversation)
}

func documentsRelevanceMessages(docContext string, conversation []message.Message) []message.Message {
	msgs := withSystem(fmt.Sprintf(documentsPrompt, docContext), conversation)
	return append(msgs, message.NewUserMessage(documentsRelevancePrompt))
}

func documentsAnswerMessages(docContext string, conversation []message.Message) []message.Message {
	return withSystem(fmt.Sprintf(documentsAnswerPrompt, docContext), conversation)
}
