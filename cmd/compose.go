package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapframe/snapframe/internal/compositor"
)

var (
	composeTemplate string
	composePhotos   []string
	composeComment  string
	composeOutput   string
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose photos onto a frame template",
	Long: `Compose processed photos onto a frame template and write the JPEG.
Photos are assigned to the template's slots in the order given; slots
without a photo keep the background visible.

Examples:
  snapframe compose --photo a.jpg --photo b.jpg
  snapframe compose --template party --photo a.jpg --output party.jpg
  snapframe compose --photo a.jpg --comment "Happy New Year"`,
	RunE: runCompose,
}

func init() {
	rootCmd.AddCommand(composeCmd)

	composeCmd.Flags().StringVarP(&composeTemplate, "template", "t", "", "Template key (defaults to the current template)")
	composeCmd.Flags().StringArrayVarP(&composePhotos, "photo", "P", nil, "Processed photo filename per slot, in slot order")
	composeCmd.Flags().StringVarP(&composeComment, "comment", "c", "", "Comment text for the template's comment box")
	composeCmd.Flags().StringVarP(&composeOutput, "output", "o", "composed.jpg", "Output file")
}

func runCompose(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	b, err := newBooth(logger)
	if err != nil {
		return err
	}

	key := composeTemplate
	if key == "" {
		key = b.store.Current()
	}
	if key == "" {
		return fmt.Errorf("no template selected: pass --template or set a current template")
	}

	tmpl, err := b.store.Get(key)
	if err != nil {
		return err
	}

	slots := make([]compositor.SlotAssignment, len(tmpl.Slots))
	for i, slot := range tmpl.Slots {
		slots[i] = compositor.SlotAssignment{Slot: slot}
		if i < len(composePhotos) {
			slots[i].Photo = composePhotos[i]
		}
	}

	image, err := b.compositor.Compose(context.Background(), compositor.Request{
		TemplateKey: key,
		Background:  tmpl.Background,
		CommentBox:  tmpl.CommentBox,
		Slots:       slots,
		Comment:     composeComment,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(composeOutput, image, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (%d slots, template %s)\n", composeOutput, len(slots), key)
	return nil
}
