package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"docchat/gateway/internal/session"
	"docchat/gateway/internal/upstream"
)

func newDocumentsCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.store.Init(cmd.Context())
			if a.store.State().User == nil {
				return errNotLoggedIn
			}

			fetcher := session.NewFetcher(a.store, a.client, session.FetcherConfig{})
			var docs []json.RawMessage
			err := fetcher.DoJSON(cmd.Context(), upstream.Call{
				Method: http.MethodGet,
				Path:   "/api/documents",
				Query: url.Values{
					"limit":  {strconv.Itoa(limit)},
					"offset": {strconv.Itoa(offset)},
				},
			}, &docs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents.")
				return nil
			}
			for _, doc := range docs {
				fmt.Fprintln(out, string(doc))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
