package ingest

import (
	"fmt"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

// searchUnseen returns the UIDs of unseen messages in the selected mailbox,
// bounded to the most recent window messages. When the server supports the SORT
// extension the window is picked by reverse date order; otherwise the tail of
// the UID search result serves as the recency approximation.
func searchUnseen(c *client.Client, window int) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	sortClient := sortthread.NewSortClient(c)
	supported, err := sortClient.SupportSort()
	if err == nil && supported {
		sortCriteria := []sortthread.SortCriterion{{Field: sortthread.SortDate, Reverse: true}}
		uids, err := sortClient.UidSort(sortCriteria, criteria)
		if err != nil {
			return nil, fmt.Errorf("SORT command returned error: %w", err)
		}
		if window > 0 && len(uids) > window {
			uids = uids[:window]
		}
		// Process oldest first.
		for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
			uids[i], uids[j] = uids[j], uids[i]
		}
		return uids, nil
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}

	// UIDs come back ascending; the tail is the most recent window.
	if window > 0 && len(uids) > window {
		uids = uids[len(uids)-window:]
	}

	return uids, nil
}

// fetchMessages fetches envelope and full body for the given UIDs.
func fetchMessages(c *client.Client, uids []uint32) ([]*imap.Message, error) {
	if len(uids) == 0 {
		return []*imap.Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []*imap.Message
	for msg := range messages {
		result = append(result, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return result, nil
}
