package cli

import (
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/sagestack-io/sagestack/internal/logging"
	"github.com/sagestack-io/sagestack/internal/template"
)

var (
	generateInput  string
	generateOutput string
	generateCode   map[string]string
	generateUpload string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Assemble the deployment template",
	Long: `Assembles the deployable CloudFormation template from the source template,
inlining handler code into each named resource's Code.ZipFile and
substituting the per-stack name suffix.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateInput, "input", "src/template.yaml", "Source template")
	generateCmd.Flags().StringVar(&generateOutput, "output", "CodeEditorStack.template.yaml", "Assembled template destination")
	generateCmd.Flags().StringToStringVar(&generateCode, "code", nil, "Code to inline (format: Resource=path)")
	generateCmd.Flags().StringVar(&generateUpload, "upload", "", "Also upload the result (format: s3://bucket/key)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(generateInput)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	code := make(map[string]string, len(generateCode))
	for resource, path := range generateCode {
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read code for %s: %w", resource, err)
		}
		code[resource] = string(body)
	}

	assembled, err := template.Assemble(src, code)
	if err != nil {
		return err
	}

	if err := os.WriteFile(generateOutput, assembled, 0o644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	logging.Info("assembled template", "output", generateOutput, "inlined", len(code))

	if generateUpload == "" {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}
	uploader := template.NewUploader(s3.NewFromConfig(cfg))
	return uploader.Upload(cmd.Context(), generateUpload, assembled)
}
