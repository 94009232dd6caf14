package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/floorcast/internal/imagefile"
	"github.com/kiranshivaraju/floorcast/internal/outputs"
	"github.com/kiranshivaraju/floorcast/internal/prompt"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	room     string
	refs     []string
	mask     string
	fragment string
	hint     string
	floor    string
	outDir   string
	provider string
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one room with reference images, without a server",
		Long: "Calls the image generator once with a room photo, one or more floor reference images " +
			"and an optional floor mask. Every image the model returns is written to --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.room, "room", "", "room photo (png, jpeg or webp)")
	cmd.Flags().StringArrayVar(&opts.refs, "ref", nil, "floor reference image, repeatable; the first sets the colour")
	cmd.Flags().StringVar(&opts.mask, "mask", "", "optional floor mask, white marks the floor")
	cmd.Flags().StringVar(&opts.fragment, "product", "", "product description added to the prompt")
	cmd.Flags().StringVar(&opts.hint, "hint", "", "extra guidance for this room")
	cmd.Flags().StringVar(&opts.floor, "floor", "floor", "floor name used in output file names")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "outputs", "output directory")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "generator provider, overrides GENERATOR_PROVIDER")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func runRender(cmd *cobra.Command, opts renderOptions) error {
	gen, err := newGenerator(opts.provider)
	if err != nil {
		return err
	}
	paths, err := render(cmd.Context(), gen, opts)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

// render calls gen once and returns the paths of the written images.
func render(ctx context.Context, gen models.ImageGenerator, opts renderOptions) ([]string, error) {
	room, err := imagefile.Read(opts.room)
	if err != nil {
		return nil, fmt.Errorf("room: %w", err)
	}
	req := models.GenerationRequest{Room: room}
	for _, ref := range opts.refs {
		img, err := imagefile.Read(ref)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		req.References = append(req.References, img)
	}
	if opts.mask != "" {
		mask, err := imagefile.Read(opts.mask)
		if err != nil {
			return nil, fmt.Errorf("mask: %w", err)
		}
		req.Mask = &mask
	}
	req.Prompt = prompt.NewComposer("", "cli").Compose(opts.fragment, opts.hint).Text

	if ctx == nil {
		ctx = context.Background()
	}
	images, err := gen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", gen.Name(), err)
	}
	if len(images) == 0 {
		return nil, errors.New("model returned no image")
	}

	out, err := outputs.NewStore(opts.outDir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, img := range images {
		ref, err := out.Save(img, opts.room, opts.floor)
		if err != nil {
			return paths, err
		}
		paths = append(paths, filepath.Join(out.Dir(), strings.TrimPrefix(ref, outputs.URLPrefix)))
	}
	return paths, nil
}
