// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/model"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/session"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var feedFlags []string
	var repeat int
	cmd := &cobra.Command{
		Use:   "run MODEL",
		Short: "Execute a model file (local path or gs:// reference)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := model.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			g, err := model.DecodeFile(path)
			if err != nil {
				return err
			}

			sess := session.New(session.Options{
				LogID:        g.Name(),
				LogVerbosity: v.GetInt("verbosity"),
			})
			defer func() { _ = sess.Close() }()
			if err := registerProviders(sess, v.GetStringSlice("providers")); err != nil {
				return err
			}
			if err := sess.Load(g); err != nil {
				return err
			}
			if err := sess.Initialize(); err != nil {
				return err
			}

			feeds, err := buildFeeds(sess, feedFlags)
			if err != nil {
				return err
			}

			var fetches []*values.Value
			bar := progressbar.NewOptions(repeat,
				progressbar.OptionSetDescription("running"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
			)
			for i := 0; i < repeat; i++ {
				fetches, err = sess.Run(feeds, nil, nil)
				if err != nil {
					return err
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()
			fmt.Fprintln(cmd.OutOrStdout())

			fmt.Fprintf(cmd.OutOrStdout(), "%s (provider %q)\n",
				titleStyle.Render(g.Name()), sess.Provider().ID())
			outputs, _ := sess.Outputs()
			fmt.Fprintln(cmd.OutOrStdout(), renderFetches(outputs, fetches))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&feedFlags, "feed", nil,
		"input values as name=v1,v2,... (unset inputs are zero-filled)")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "number of times to run the model")
	return cmd
}

// registerProviders binds the requested providers (all registered when empty) to
// the session, in order.
func registerProviders(sess *session.InferenceSession, ids []string) error {
	if len(ids) == 0 {
		// The session constructs the defaults itself.
		return nil
	}
	for _, id := range ids {
		provider, err := providers.New(id, "")
		if err != nil {
			return err
		}
		if err := sess.RegisterExecutionProvider(provider); err != nil {
			return err
		}
	}
	return nil
}

// buildFeeds assembles the feed map: parsed --feed values where given, zero-filled
// tensors for the remaining inputs.
func buildFeeds(sess *session.InferenceSession, feedFlags []string) (map[string]*values.Value, error) {
	inputs, err := sess.Inputs()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*graph.NodeArg, len(inputs))
	for _, arg := range inputs {
		byName[arg.Name()] = arg
	}

	feeds := make(map[string]*values.Value, len(inputs))
	for _, flag := range feedFlags {
		name, spec, found := strings.Cut(flag, "=")
		if !found {
			return nil, errors.Errorf("malformed --feed %q, want name=v1,v2,...", flag)
		}
		arg, known := byName[name]
		if !known {
			return nil, errors.Errorf("--feed %q: model has no input named %q", flag, name)
		}
		tensor, err := parseFeed(arg, spec)
		if err != nil {
			return nil, errors.WithMessagef(err, "--feed %q", flag)
		}
		feeds[name] = values.NewTensorValue(tensor)
	}
	for _, arg := range inputs {
		if _, set := feeds[arg.Name()]; !set {
			feeds[arg.Name()] = values.NewTensorValue(values.FromShape(arg.Shape()))
		}
	}
	return feeds, nil
}

func parseFeed(arg *graph.NodeArg, spec string) (*values.Tensor, error) {
	parts := strings.Split(spec, ",")
	if want := arg.Shape().Size(); len(parts) != want {
		return nil, errors.Errorf("shape %s requires %d value(s), got %d",
			arg.Shape(), want, len(parts))
	}
	switch arg.DType() {
	case dtypes.Float32:
		flat := make([]float32, len(parts))
		for i, part := range parts {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
			if err != nil {
				return nil, errors.Wrapf(err, "value %d", i)
			}
			flat[i] = float32(parsed)
		}
		return values.FromFlatDataAndDimensions(flat, arg.Shape().Dimensions...), nil
	case dtypes.Float64:
		flat := make([]float64, len(parts))
		for i, part := range parts {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "value %d", i)
			}
			flat[i] = parsed
		}
		return values.FromFlatDataAndDimensions(flat, arg.Shape().Dimensions...), nil
	case dtypes.Int32, dtypes.Int64:
		flat := make([]int64, len(parts))
		for i, part := range parts {
			parsed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "value %d", i)
			}
			flat[i] = parsed
		}
		if arg.DType() == dtypes.Int32 {
			flat32 := make([]int32, len(flat))
			for i, v := range flat {
				flat32[i] = int32(v)
			}
			return values.FromFlatDataAndDimensions(flat32, arg.Shape().Dimensions...), nil
		}
		return values.FromFlatDataAndDimensions(flat, arg.Shape().Dimensions...), nil
	default:
		return nil, errors.Errorf("cannot parse feeds of dtype %s", arg.DType())
	}
}
