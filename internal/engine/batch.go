package engine

// batch is a contiguous run of paragraphs dispatched together. Every
// member shares the same surrounding context, so the ordinals are
// strictly consecutive with no gaps.
type batch struct {
	paragraphs []Paragraph
}

func (b batch) first() int { return b.paragraphs[0].Index }
func (b batch) last() int  { return b.paragraphs[len(b.paragraphs)-1].Index }

func (b batch) ids() []string {
	ids := make([]string, len(b.paragraphs))
	for i, p := range b.paragraphs {
		ids[i] = p.ID
	}
	return ids
}

// buildBatch extracts the next batch from the queue, or nil if the
// queue is empty.
//
// The queue head anchors the batch regardless of its priority. The run
// then extends through subsequent queue items only while their ordinals
// stay consecutive with the running end, the count stays within
// maxParagraphs, and the cumulative source length stays within
// maxChars. The overflow check happens before an item is added, so the
// anchor always ships even when it alone exceeds the character budget.
// Selected items are removed from the queue.
func buildBatch(q *workQueue, reg *Registry, maxParagraphs, maxChars int) *batch {
	if q.len() == 0 {
		return nil
	}

	anchor := q.at(0)
	p, ok := reg.Get(anchor.id)
	if !ok {
		// Stale item for an unknown paragraph: drop and retry.
		q.remove(anchor.id)
		return buildBatch(q, reg, maxParagraphs, maxChars)
	}

	run := []Paragraph{p}
	chars := len(p.Text)

	for q.len() > len(run) && len(run) < maxParagraphs {
		next := q.at(len(run))
		if next.ordinal != run[len(run)-1].Index+1 {
			break // gap: contiguity ends here
		}
		np, ok := reg.Get(next.id)
		if !ok {
			break
		}
		if chars+len(np.Text) > maxChars {
			break
		}
		run = append(run, np)
		chars += len(np.Text)
	}

	b := &batch{paragraphs: run}
	q.removeAll(b.ids())
	return b
}
