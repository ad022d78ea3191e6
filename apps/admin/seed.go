package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

type (
	seedFile struct {
		Templates []seedTemplate `yaml:"templates"`
		APIKeys   []seedAPIKey   `yaml:"apiKeys"`
	}

	seedVariable struct {
		Name        string `yaml:"name"`
		Key         string `yaml:"key"`
		Description string `yaml:"description"`
		Required    bool   `yaml:"required"`
	}

	seedTemplate struct {
		Name      string            `yaml:"name"`
		Content   string            `yaml:"content"`
		Category  string            `yaml:"category"`
		Tags      []string          `yaml:"tags"`
		Variables []seedVariable    `yaml:"variables"`
		IsActive  *bool             `yaml:"isActive"`
		Language  string            `yaml:"language"`
		SenderID  string            `yaml:"senderId"`
		Metadata  map[string]string `yaml:"metadata"`
	}

	seedAPIKey struct {
		Service     string `yaml:"service"`
		Key         string `yaml:"apiKey"`
		Description string `yaml:"description"`
		IsActive    *bool  `yaml:"isActive"`
		UsageLimit  *int   `yaml:"usageLimit"`
	}
)

func (st seedTemplate) data() sms.TemplateData {
	vars := make([]sms.Variable, 0, len(st.Variables))
	for _, v := range st.Variables {
		vars = append(vars, sms.Variable{Name: v.Name, Key: v.Key, Description: v.Description, Required: v.Required})
	}
	return sms.TemplateData{
		Name:      st.Name,
		Content:   st.Content,
		Category:  st.Category,
		Tags:      st.Tags,
		Variables: vars,
		IsActive:  st.IsActive,
		Language:  st.Language,
		SenderID:  st.SenderID,
		Metadata:  st.Metadata,
	}
}

func (cli *commandLine) seedCommand() *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Load SMS templates and API keys from a YAML file",
		Long:  "Load SMS templates and API keys from a YAML file. Templates whose name is already taken are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var seeds seedFile
			if err = yaml.Unmarshal(raw, &seeds); err != nil {
				return errors.Wrapf(err, "parsing %s", args[0])
			}
			return cli.seed(cmd.Context(), seeds, author)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "username or email recorded as the templates' creator")
	return cmd
}

func (cli *commandLine) seed(ctx context.Context, seeds seedFile, author string) error {
	var by sms.UserRef
	if author != "" {
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: author})
		if err != nil {
			return errors.Wrapf(err, "author %q", author)
		}
		by = sms.UserRef{ID: usr.ID, Username: usr.Username}
	}

	existing, err := cli.tplRepo.AllTemplates(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, tpl := range existing {
		names[tpl.Name] = true
	}

	var created, skipped int
	for _, st := range seeds.Templates {
		data := st.data()
		data.Clean()
		if names[data.Name] {
			skipped++
			continue
		}
		if _, err = cli.tplSvc.Create(ctx, data, by); err != nil {
			return errors.Wrapf(err, "template %q", data.Name)
		}
		names[data.Name] = true
		created++
	}

	var keys int
	for i, sk := range seeds.APIKeys {
		nk := apikey.NewAPIKey{
			Service:     sk.Service,
			Key:         sk.Key,
			Description: sk.Description,
			IsActive:    sk.IsActive,
			UsageLimit:  sk.UsageLimit,
		}
		if err = nk.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "api key #%d", i+1)
		}
		if _, err = cli.keySvc.Create(ctx, nk); err != nil {
			return errors.Wrapf(err, "api key #%d", i+1)
		}
		keys++
	}

	fmt.Fprintf(cli.out, "%d template(s) created, %d skipped, %d API key(s) created.\n", created, skipped, keys)
	return nil
}
