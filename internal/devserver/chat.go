package devserver

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"

	"docchat/internal/storage"
)

const (
	excerptLen = 280
	maxSources = 3
	noDocsText = "There are no processed documents in this room yet. Upload a PDF or TXT file and wait for it to finish processing."
	noHitText  = "I could not find anything about that in this room's documents."
)

type askRequest struct {
	Question string `json:"question" binding:"required,min=1,max=2000"`
}

func (s *Server) handleAsk(c *gin.Context) {
	room, ok := s.ownedRoom(c, "roomID")
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}
	if s.rateLimited(c, s.chat, "chat:"+strconv.FormatInt(userID(c), 10)) {
		return
	}
	ctx := c.Request.Context()
	docs, err := s.store.ListDocuments(ctx, room.ID)
	if err != nil {
		s.internalError(c, "list documents", err)
		return
	}
	answer, sources := answerFrom(req.Question, docs)

	saved, err := s.store.AppendExchange(ctx,
		storage.Message{RoomID: room.ID, UserID: userID(c), MessageType: "user", Content: req.Question},
		storage.Message{RoomID: room.ID, UserID: userID(c), MessageType: "ai", Content: answer, Sources: sources},
	)
	if err != nil {
		s.internalError(c, "store messages", err)
		return
	}
	s.metrics.IncQuestion()
	c.JSON(http.StatusOK, gin.H{
		"message_id":  saved.ID,
		"question":    req.Question,
		"answer":      answer,
		"sources":     sources,
		"tokens_used": 0,
		"created_at":  saved.CreatedAt,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	room, ok := s.ownedRoom(c, "roomID")
	if !ok {
		return
	}
	messages, err := s.store.ListMessages(c.Request.Context(), room.ID)
	if err != nil {
		s.internalError(c, "list messages", err)
		return
	}
	out := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		sources := m.Sources
		if sources == nil {
			sources = []storage.MessageSource{}
		}
		out = append(out, gin.H{
			"id":           m.ID,
			"message_type": m.MessageType,
			"content":      m.Content,
			"sources":      sources,
			"created_at":   m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

type pageHit struct {
	doc   *storage.Document
	page  int
	score int
}

// answerFrom picks the pages sharing the most words with the question and
// quotes the best one.
func answerFrom(question string, docs []storage.Document) (string, []storage.MessageSource) {
	terms := tokenize(question)
	var hits []pageHit
	processed := 0
	for i := range docs {
		if !docs[i].Processed {
			continue
		}
		processed++
		for p, text := range docs[i].Pages {
			words := tokenize(text)
			score := 0
			for term := range terms {
				if _, ok := words[term]; ok {
					score++
				}
			}
			if score > 0 {
				hits = append(hits, pageHit{doc: &docs[i], page: p + 1, score: score})
			}
		}
	}
	if processed == 0 {
		return noDocsText, nil
	}
	if len(hits) == 0 {
		return noHitText, nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxSources {
		hits = hits[:maxSources]
	}
	best := hits[0]
	var b strings.Builder
	b.WriteString("From ")
	b.WriteString(best.doc.Filename)
	b.WriteString(":\n\n")
	b.WriteString(excerpt(best.doc.Pages[best.page-1], excerptLen))

	sources := make([]storage.MessageSource, 0, len(hits))
	for _, h := range hits {
		page := h.page
		sources = append(sources, storage.MessageSource{DocumentID: h.doc.ID, Filename: h.doc.Filename, PageNumber: &page})
	}
	return b.String(), sources
}

func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
